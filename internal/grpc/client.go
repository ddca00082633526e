package igrpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"social-service/internal/models"
)

// Client calls the internal social service.
type Client struct {
	conn *grpc.ClientConn
}

func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("social gRPC address is required")
	}

	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial social gRPC: %w", err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AreFriends(ctx context.Context, userID, friendID int64) (bool, error) {
	out, err := c.invoke(ctx, "AreFriends", map[string]any{"user_id": userID, "friend_id": friendID})
	if err != nil {
		return false, err
	}
	return out.GetFields()["are_friends"].GetBoolValue(), nil
}

func (c *Client) CanMessage(ctx context.Context, userID, otherID int64) (bool, error) {
	out, err := c.invoke(ctx, "CanMessage", map[string]any{"user_id": userID, "other_user_id": otherID})
	if err != nil {
		return false, err
	}
	return out.GetFields()["can_message"].GetBoolValue(), nil
}

func (c *Client) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	out, err := c.invoke(ctx, "GetUser", map[string]any{"user_id": userID})
	if err != nil {
		return nil, err
	}
	user := &models.User{}
	if err := fromStruct(out, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (c *Client) BulkUsers(ctx context.Context, ids []int64) ([]models.User, error) {
	list := make([]any, 0, len(ids))
	for _, id := range ids {
		list = append(list, id)
	}
	out, err := c.invoke(ctx, "BulkUsers", map[string]any{"ids": list})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Users []models.User `json:"users"`
	}
	if err := fromStruct(out, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// Healthy reports whether the server's health service says SERVING.
func (c *Client) Healthy(ctx context.Context) (bool, error) {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

func fromStruct(s *structpb.Struct, v any) error {
	raw, err := s.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
