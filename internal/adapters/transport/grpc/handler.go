package grpc

import (
	"context"
	"errors"

	customErrors "github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/model"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName      = "chatauth.v1.TokenIntrospection"
	introspectMethod = "/" + ServiceName + "/Introspect"
)

// IntrospectionServer lets resource servers turn an access token into a user identity.
// Messages are protobuf well-known types, so no generated code is needed.
type IntrospectionServer interface {
	Introspect(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

func RegisterIntrospectionServer(s grpc.ServiceRegistrar, srv IntrospectionServer) {
	s.RegisterService(&introspectionDesc, srv)
}

var introspectionDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IntrospectionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Introspect", Handler: introspectHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "chatauth/v1/introspection.proto",
}

func introspectHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IntrospectionServer).Introspect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: introspectMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(IntrospectionServer).Introspect(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

type IntrospectionClient struct {
	cc grpc.ClientConnInterface
}

func NewIntrospectionClient(cc grpc.ClientConnInterface) *IntrospectionClient {
	return &IntrospectionClient{cc: cc}
}

func (c *IntrospectionClient) Introspect(ctx context.Context, accessToken string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, introspectMethod, wrapperspb.String(accessToken), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type Authenticator interface {
	Authenticate(ctx context.Context, rawAccessToken string) (model.User, error)
}

type Handler struct {
	auth Authenticator
	log  *zap.Logger
}

func NewHandler(auth Authenticator, log *zap.Logger) *Handler {
	return &Handler{auth: auth, log: log.Named("grpc")}
}

func (h *Handler) Introspect(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if req.GetValue() == "" {
		return nil, mapError(customErrors.ErrTokenMissing)
	}

	user, err := h.auth.Authenticate(ctx, req.GetValue())
	if err != nil {
		if customErrors.IsInternal(err) {
			h.log.Error("introspect failed", zap.Error(err))
		}
		return nil, mapError(err)
	}

	roles := make([]any, 0, len(user.Roles))
	for _, r := range user.Roles {
		roles = append(roles, r)
	}
	out, err := structpb.NewStruct(map[string]any{
		"user_id": user.ID.String(),
		"email":   user.Email,
		"roles":   roles,
	})
	if err != nil {
		return nil, mapError(customErrors.WrapInternal(err, "Introspect"))
	}
	return out, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, customErrors.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, customErrors.ErrTokenExpired):
		return status.Error(codes.Unauthenticated, "expired token")
	case errors.Is(err, customErrors.ErrTokenMissing):
		return status.Error(codes.Unauthenticated, "token not found")
	case customErrors.IsInvalidCredentials(err):
		return status.Error(codes.Unauthenticated, "invalid credentials")
	case customErrors.IsInvalidToken(err), customErrors.IsUserNotFound(err):
		return status.Error(codes.Unauthenticated, "invalid token")
	case errors.Is(err, customErrors.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, customErrors.ErrForbidden):
		return status.Error(codes.PermissionDenied, "forbidden")
	case errors.Is(err, customErrors.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
