package profile

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
)

type fakeProfileService struct {
	mu     sync.Mutex
	awards []map[string]any
}

func (f *fakeProfileService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(GetProfileProcedure, connect.NewUnaryHandler(GetProfileProcedure,
		func(_ context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
			userID := req.Msg.GetFields()["userId"].GetStringValue()
			if userID == "ghost" {
				return nil, connect.NewError(connect.CodeNotFound, errors.New("no such user"))
			}
			res, _ := structpb.NewStruct(map[string]any{
				"userId":      userID,
				"displayName": "Player " + userID,
				"avatar":      "https://cdn.example/" + userID + ".png",
			})
			return connect.NewResponse(res), nil
		},
	))
	mux.Handle(AwardCoinsProcedure, connect.NewUnaryHandler(AwardCoinsProcedure,
		func(_ context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
			f.mu.Lock()
			f.awards = append(f.awards, req.Msg.AsMap())
			f.mu.Unlock()
			return connect.NewResponse(&structpb.Struct{}), nil
		},
	))
	return mux
}

func TestConnectClientGetProfile(t *testing.T) {
	svc := &fakeProfileService{}
	srv := httptest.NewServer(svc.handler())
	defer srv.Close()

	c := NewConnectClient(srv.Client(), srv.URL)
	id, err := c.GetProfile(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if id.UserID != "u1" || id.DisplayName != "Player u1" || id.Avatar == "" {
		t.Fatalf("identity = %+v", id)
	}

	if _, err := c.GetProfile(context.Background(), "ghost"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("err = %v, want ErrProfileNotFound", err)
	}
	if got := Resolve(context.Background(), c, "ghost"); got.DisplayName != "ghost" {
		t.Fatalf("fallback identity = %+v", got)
	}
}

func TestConnectClientAwardCoins(t *testing.T) {
	svc := &fakeProfileService{}
	srv := httptest.NewServer(svc.handler())
	defer srv.Close()

	c := NewConnectClient(srv.Client(), srv.URL)
	if err := c.AwardCoins(context.Background(), "u1", 50, "race_win:r1"); err != nil {
		t.Fatalf("AwardCoins: %v", err)
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.awards) != 1 {
		t.Fatalf("awards = %d", len(svc.awards))
	}
	got := svc.awards[0]
	if got["userId"] != "u1" || got["amount"] != float64(50) || got["reason"] != "race_win:r1" {
		t.Fatalf("award request = %v", got)
	}
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider()
	ctx := context.Background()

	id, _ := p.GetProfile(ctx, "anon")
	if id.DisplayName != "anon" {
		t.Fatalf("display name = %q", id.DisplayName)
	}
	_ = p.AwardCoins(ctx, "anon", 50, "win")
	_ = p.AwardCoins(ctx, "anon", 50, "win")
	if p.Coins("anon") != 100 {
		t.Fatalf("coins = %d", p.Coins("anon"))
	}
}
