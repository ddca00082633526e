package igrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"social-service/internal/services"
)

const ServiceName = "social.v1.SocialInternal"

// SocialInternalServer is the internal read API other services call.
// Requests and responses are free-form structs keyed like the HTTP JSON.
type SocialInternalServer interface {
	AreFriends(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetUser(context.Context, *structpb.Struct) (*structpb.Struct, error)
	BulkUsers(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CanMessage(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(SocialInternalServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SocialInternalServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SocialInternalServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SocialInternalServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AreFriends", Handler: unaryHandler("AreFriends", SocialInternalServer.AreFriends)},
		{MethodName: "GetUser", Handler: unaryHandler("GetUser", SocialInternalServer.GetUser)},
		{MethodName: "BulkUsers", Handler: unaryHandler("BulkUsers", SocialInternalServer.BulkUsers)},
		{MethodName: "CanMessage", Handler: unaryHandler("CanMessage", SocialInternalServer.CanMessage)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "social/v1/social.proto",
}

type SocialGRPCServer struct {
	users    *services.UserService
	friends  *services.FriendService
	messages *services.MessageService
}

func NewSocialGRPCServer(users *services.UserService, friends *services.FriendService, messages *services.MessageService) *SocialGRPCServer {
	return &SocialGRPCServer{users: users, friends: friends, messages: messages}
}

// NewServer builds a gRPC server exposing s and the standard health service.
func NewServer(s SocialInternalServer, log *zap.Logger) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(log)))
	srv.RegisterService(&ServiceDesc, s)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

func StartGRPCServer(ctx context.Context, addr string, s SocialInternalServer, log *zap.Logger) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	srv, hs := NewServer(s, log)

	go func() {
		<-ctx.Done()
		hs.Shutdown()
		srv.GracefulStop()
	}()

	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("gRPC server error", zap.Error(err))
		}
	}()

	log.Info("gRPC server listening", zap.String("addr", addr))
	return srv, nil
}

func loggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.Debug("grpc",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return resp, err
	}
}

func (s *SocialGRPCServer) AreFriends(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := int64Field(req, "user_id")
	if err != nil {
		return nil, err
	}
	friendID, err := int64Field(req, "friend_id")
	if err != nil {
		return nil, err
	}

	friends, err := s.friends.AreFriends(ctx, userID, friendID)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to check friendship: %v", err)
	}
	return structpb.NewStruct(map[string]any{"are_friends": friends})
}

func (s *SocialGRPCServer) GetUser(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := int64Field(req, "user_id")
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, toStatus(err, "failed to fetch user")
	}
	return toStruct(user)
}

func (s *SocialGRPCServer) BulkUsers(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	idsValue, ok := req.GetFields()["ids"]
	if !ok || idsValue.GetListValue() == nil {
		return nil, status.Error(codes.InvalidArgument, "ids is required")
	}

	users := make([]any, 0, len(idsValue.GetListValue().GetValues()))
	for _, v := range idsValue.GetListValue().GetValues() {
		id, err := int64Value(v, "ids")
		if err != nil {
			return nil, err
		}
		user, err := s.users.GetUser(ctx, id)
		if err != nil {
			return nil, toStatus(err, fmt.Sprintf("failed to fetch user %d", id))
		}
		users = append(users, user)
	}
	return toStruct(map[string]any{"users": users})
}

func (s *SocialGRPCServer) CanMessage(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := int64Field(req, "user_id")
	if err != nil {
		return nil, err
	}
	otherID, err := int64Field(req, "other_user_id")
	if err != nil {
		return nil, err
	}

	ok, err := s.messages.CanMessage(ctx, userID, otherID)
	if err != nil {
		return nil, toStatus(err, "failed to evaluate blocking")
	}
	return structpb.NewStruct(map[string]any{"can_message": ok})
}

func toStatus(err error, msg string) error {
	if errors.Is(err, services.ErrNotFound) {
		return status.Error(codes.NotFound, err.Error())
	}
	return status.Errorf(codes.Internal, "%s: %v", msg, err)
}

// toStruct converts v through its JSON form so responses carry the same
// field names as the HTTP API.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(raw); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func int64Field(req *structpb.Struct, name string) (int64, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	return int64Value(v, name)
}

func int64Value(v *structpb.Value, name string) (int64, error) {
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", name)
	}
	return int64(n.NumberValue), nil
}
