package grpc

import (
	"context"
	"errors"
	"net"
	"testing"

	customErrors "github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

/* ───────────────────────────── stub authenticator ───────────────────────────── */

type stubAuth struct {
	user model.User
}

func (s stubAuth) Authenticate(_ context.Context, raw string) (model.User, error) {
	switch raw {
	case "good":
		return s.user, nil
	case "old":
		return model.User{}, customErrors.ErrTokenExpired
	case "db-down":
		return model.User{}, customErrors.WrapInternal(errors.New("conn refused"), "Authenticate")
	default:
		return model.User{}, customErrors.ErrTokenBadSignature
	}
}

func newHandler() (*Handler, model.User) {
	u := model.User{ID: uuid.New(), Email: "a@b.c", Roles: model.Roles{model.RoleUser, model.RoleAdmin}}
	return NewHandler(stubAuth{user: u}, zap.NewNop()), u
}

/* ───────────────────────────── tests ───────────────────────────── */

func TestHandler_Introspect(t *testing.T) {
	h, u := newHandler()

	resp, err := h.Introspect(context.Background(), wrapperspb.String("good"))
	if err != nil {
		t.Fatalf("Introspect returned error: %v", err)
	}
	fields := resp.AsMap()
	if fields["user_id"] != u.ID.String() || fields["email"] != "a@b.c" {
		t.Fatalf("unexpected payload %v", fields)
	}
	roles, _ := fields["roles"].([]any)
	if len(roles) != 2 || roles[1] != model.RoleAdmin {
		t.Fatalf("unexpected roles %v", fields["roles"])
	}
}

func TestHandler_IntrospectFailures(t *testing.T) {
	h, _ := newHandler()

	cases := map[string]codes.Code{
		"":        codes.Unauthenticated,
		"forged":  codes.Unauthenticated,
		"old":     codes.Unauthenticated,
		"db-down": codes.Internal,
	}
	for raw, want := range cases {
		_, err := h.Introspect(context.Background(), wrapperspb.String(raw))
		if got := status.Code(err); got != want {
			t.Fatalf("token %q: want %s, got %s (%v)", raw, want, got, err)
		}
	}
}

func TestMapError(t *testing.T) {
	cases := []struct {
		err  error
		want codes.Code
	}{
		{customErrors.ErrInvalidCredentials, codes.Unauthenticated},
		{customErrors.ErrUserNotFound, codes.Unauthenticated},
		{customErrors.ErrInvalidRefreshToken, codes.Unauthenticated},
		{customErrors.NewInvalidArgument("bad"), codes.InvalidArgument},
		{customErrors.ErrAlreadyExists, codes.AlreadyExists},
		{customErrors.ErrForbidden, codes.PermissionDenied},
		{customErrors.ErrNotFound, codes.NotFound},
		{errors.New("x"), codes.Internal},
	}
	for _, tc := range cases {
		if got := status.Code(mapError(tc.err)); got != tc.want {
			t.Fatalf("%v: want %s, got %s", tc.err, tc.want, got)
		}
	}
}

func TestIntrospection_OverTheWire(t *testing.T) {
	h, u := newHandler()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterIntrospectionServer(srv, h)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	client := NewIntrospectionClient(conn)
	resp, err := client.Introspect(context.Background(), "good")
	if err != nil {
		t.Fatalf("Introspect: %v", err)
	}
	if resp.GetFields()["user_id"].GetStringValue() != u.ID.String() {
		t.Fatalf("unexpected response %v", resp)
	}

	_, err = client.Introspect(context.Background(), "forged")
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("want Unauthenticated, got %v", err)
	}
}
