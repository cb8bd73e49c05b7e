package redis

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	customErrors "github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/model"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redisv9 "github.com/redis/go-redis/v9"
)

func newRepo(t *testing.T) (*RedisTokenRepo, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	t.Cleanup(mr.Close)

	client := redisv9.NewClient(&redisv9.Options{
		Addr: mr.Addr(),
	})
	return NewRedisTokenRepo(client), mr
}

func token(value string, uid uuid.UUID, ttl time.Duration) model.RefreshToken {
	now := time.Now()
	return model.RefreshToken{Value: value, UserID: uid, CreatedAt: now, ExpiresAt: now.Add(ttl)}
}

func TestRedisTokenRepo_CreateAndGet(t *testing.T) {
	repo, mr := newRepo(t)
	ctx := context.Background()
	uid := uuid.New()

	tok := token("v1", uid, 10*time.Minute)
	if err := repo.Create(ctx, tok); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, tok); !customErrors.IsAlreadyExists(err) {
		t.Fatalf("second Create should report ErrAlreadyExists, got %v", err)
	}

	got, err := repo.Get(ctx, "v1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.UserID != uid || !got.ExpiresAt.Equal(tok.ExpiresAt) {
		t.Fatalf("unexpected token %+v", got)
	}

	if ttl := mr.TTL(tokenPrefix + "v1"); ttl <= 10*time.Minute {
		t.Fatalf("key TTL should include the grace period, got %v", ttl)
	}
	if ok, _ := mr.SIsMember(userPrefix+uid.String(), "v1"); !ok {
		t.Fatal("token must be indexed under its user")
	}

	if _, err := repo.Get(ctx, "missing"); !customErrors.IsNotFound(err) {
		t.Fatalf("Get unknown: want ErrNotFound, got %v", err)
	}
}

func TestRedisTokenRepo_DeleteOnce(t *testing.T) {
	repo, mr := newRepo(t)
	ctx := context.Background()
	uid := uuid.New()

	if err := repo.Create(ctx, token("v2", uid, time.Minute)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	removed, err := repo.Delete(ctx, "v2")
	if err != nil || !removed {
		t.Fatalf("first Delete: removed=%v err=%v", removed, err)
	}
	removed, err = repo.Delete(ctx, "v2")
	if err != nil || removed {
		t.Fatalf("second Delete: removed=%v err=%v", removed, err)
	}
	if ok, _ := mr.SIsMember(userPrefix+uid.String(), "v2"); ok {
		t.Fatal("user index must forget deleted token")
	}
}

func TestRedisTokenRepo_ConcurrentDeleteHasOneWinner(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	if err := repo.Create(ctx, token("hot", uuid.New(), time.Minute)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			removed, err := repo.Delete(ctx, "hot")
			if err != nil {
				t.Error(err)
				return
			}
			if removed {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("exactly one Delete must win, got %d", wins)
	}
}

func TestRedisTokenRepo_DeleteAllForUser(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	for _, tok := range []model.RefreshToken{
		token("a1", a, time.Minute), token("a2", a, time.Minute), token("b1", b, time.Minute),
	} {
		if err := repo.Create(ctx, tok); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	n, err := repo.DeleteAllForUser(ctx, a)
	if err != nil || n != 2 {
		t.Fatalf("DeleteAllForUser: n=%d err=%v", n, err)
	}
	if _, err := repo.Get(ctx, "a1"); !customErrors.IsNotFound(err) {
		t.Fatalf("a1 should be gone, got %v", err)
	}
	if _, err := repo.Get(ctx, "b1"); err != nil {
		t.Fatalf("b1 must survive: %v", err)
	}

	n, err = repo.DeleteAllForUser(ctx, a)
	if err != nil || n != 0 {
		t.Fatalf("second DeleteAllForUser: n=%d err=%v", n, err)
	}
}

func TestRedisTokenRepo_PurgeExpired(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	uid := uuid.New()
	now := time.Now()

	for _, tok := range []model.RefreshToken{
		{Value: "old", UserID: uid, CreatedAt: now, ExpiresAt: now.Add(-time.Minute)},
		{Value: "edge", UserID: uid, CreatedAt: now, ExpiresAt: now},
		{Value: "fresh", UserID: uid, CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
	} {
		if err := repo.Create(ctx, tok); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	n, err := repo.PurgeExpired(ctx, now)
	if err != nil || n != 2 {
		t.Fatalf("PurgeExpired: n=%d err=%v", n, err)
	}
	if _, err := repo.Get(ctx, "fresh"); err != nil {
		t.Fatalf("fresh token must survive: %v", err)
	}
}

func TestRedisTokenRepo_PurgeCleansUserIndexOfVanishedKeys(t *testing.T) {
	repo, mr := newRepo(t)
	ctx := context.Background()
	uid := uuid.New()

	if err := repo.Create(ctx, token("gone", uid, time.Minute)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	// ключ токена истекает сам по себе, индексы остаются
	mr.FastForward(2 * time.Hour)
	if mr.Exists(tokenPrefix + "gone") {
		t.Fatal("token key should have expired")
	}

	if _, err := repo.PurgeExpired(ctx, time.Now().Add(2*time.Hour)); err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if ok, _ := mr.SIsMember(userPrefix+uid.String(), "gone"); ok {
		t.Fatal("user index must forget the vanished token")
	}
	if set, _ := mr.SortedSet(expiryIndex); len(set) != 0 {
		t.Fatalf("expiry index must be emptied, still holds %v", set)
	}
}

func TestRedisTokenRepo_Rotate(t *testing.T) {
	repo, mr := newRepo(t)
	ctx := context.Background()
	uid := uuid.New()

	if err := repo.Create(ctx, token("old", uid, time.Minute)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, token("taken", uid, time.Minute)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := repo.Rotate(ctx, "old", token("taken", uid, time.Hour)); !customErrors.IsAlreadyExists(err) {
		t.Fatalf("Rotate onto an existing value: want ErrAlreadyExists, got %v", err)
	}
	if _, err := repo.Get(ctx, "old"); err != nil {
		t.Fatalf("old token must survive a failed rotation: %v", err)
	}

	swapped, err := repo.Rotate(ctx, "old", token("new", uid, time.Hour))
	if err != nil || !swapped {
		t.Fatalf("Rotate: swapped=%v err=%v", swapped, err)
	}
	if _, err := repo.Get(ctx, "old"); !customErrors.IsNotFound(err) {
		t.Fatalf("old should be gone, got %v", err)
	}
	if _, err := repo.Get(ctx, "new"); err != nil {
		t.Fatalf("new token must be stored: %v", err)
	}
	if ok, _ := mr.SIsMember(userPrefix+uid.String(), "old"); ok {
		t.Fatal("user index must forget the rotated token")
	}
	if ok, _ := mr.SIsMember(userPrefix+uid.String(), "new"); !ok {
		t.Fatal("user index must hold the new token")
	}

	swapped, err = repo.Rotate(ctx, "old", token("again", uid, time.Hour))
	if err != nil || swapped {
		t.Fatalf("second Rotate: swapped=%v err=%v", swapped, err)
	}
	if _, err := repo.Get(ctx, "again"); !customErrors.IsNotFound(err) {
		t.Fatalf("a lost rotation must not store anything, got %v", err)
	}
}

func TestRedisTokenRepo_ConcurrentRotateHasOneWinner(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	uid := uuid.New()
	if err := repo.Create(ctx, token("hot", uid, time.Minute)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			swapped, err := repo.Rotate(ctx, "hot", token(fmt.Sprintf("next-%d", i), uid, time.Hour))
			if err != nil {
				t.Error(err)
				return
			}
			if swapped {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("exactly one Rotate must win, got %d", wins)
	}
	n, err := repo.DeleteAllForUser(ctx, uid)
	if err != nil || n != 1 {
		t.Fatalf("only the winner's token may exist: n=%d err=%v", n, err)
	}
}
