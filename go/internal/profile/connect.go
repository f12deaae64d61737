package profile

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mcdev12/puzzlerace/go/internal/race/room"
)

const (
	GetProfileProcedure = "/profile.v1.ProfileService/GetProfile"
	AwardCoinsProcedure = "/profile.v1.ProfileService/AwardCoins"
)

// ConnectClient talks to the profile service over Connect using JSON bodies.
type ConnectClient struct {
	getProfile *connect.Client[structpb.Struct, structpb.Struct]
	awardCoins *connect.Client[structpb.Struct, structpb.Struct]
}

func NewConnectClient(httpClient connect.HTTPClient, baseURL string) *ConnectClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return &ConnectClient{
		getProfile: connect.NewClient[structpb.Struct, structpb.Struct](
			httpClient, baseURL+GetProfileProcedure, connect.WithProtoJSON(),
		),
		awardCoins: connect.NewClient[structpb.Struct, structpb.Struct](
			httpClient, baseURL+AwardCoinsProcedure, connect.WithProtoJSON(),
		),
	}
}

func (c *ConnectClient) GetProfile(ctx context.Context, userID string) (room.Identity, error) {
	req, err := structpb.NewStruct(map[string]any{"userId": userID})
	if err != nil {
		return room.Identity{}, fmt.Errorf("build profile request: %w", err)
	}

	res, err := c.getProfile.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		if connect.CodeOf(err) == connect.CodeNotFound {
			return room.Identity{}, fmt.Errorf("%s: %w", userID, ErrProfileNotFound)
		}
		return room.Identity{}, fmt.Errorf("get profile %s: %w", userID, err)
	}

	fields := res.Msg.GetFields()
	return room.Identity{
		UserID:      stringField(fields, "userId", userID),
		DisplayName: stringField(fields, "displayName", userID),
		Avatar:      stringField(fields, "avatar", ""),
	}, nil
}

func (c *ConnectClient) AwardCoins(ctx context.Context, userID string, amount int, reason string) error {
	req, err := structpb.NewStruct(map[string]any{
		"userId": userID,
		"amount": amount,
		"reason": reason,
	})
	if err != nil {
		return fmt.Errorf("build award request: %w", err)
	}
	if _, err := c.awardCoins.CallUnary(ctx, connect.NewRequest(req)); err != nil {
		return fmt.Errorf("award %d coins to %s: %w", amount, userID, err)
	}
	return nil
}

func stringField(fields map[string]*structpb.Value, key, fallback string) string {
	if v, ok := fields[key]; ok {
		if s := v.GetStringValue(); s != "" {
			return s
		}
	}
	return fallback
}
