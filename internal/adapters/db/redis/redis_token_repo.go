package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	customErrors "github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/errors"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/domain/auth/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	tokenPrefix = "chatauth:rt:"
	userPrefix  = "chatauth:rt-user:"
	expiryIndex = "chatauth:rt-expiry"

	// ключ живёт чуть дольше срока токена, чтобы Refresh мог отличить «истёк» от «неизвестен»
	expiryGrace = time.Hour
)

// expiry members carry the owner so a purge can clean the user set even after
// the token key itself has expired.
func member(userID uuid.UUID, value string) string {
	return userID.String() + ":" + value
}

func parseMember(m string) (uuid.UUID, string, bool) {
	raw, value, ok := strings.Cut(m, ":")
	if !ok {
		return uuid.Nil, m, false
	}
	uid, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, m, false
	}
	return uid, value, true
}

type record struct {
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RedisTokenRepo keeps refresh tokens as plain keys, a per-user set for bulk
// revocation and a sorted set by expiry for purging.
type RedisTokenRepo struct {
	client redis.UniversalClient
}

func NewRedisTokenRepo(client redis.UniversalClient) *RedisTokenRepo {
	return &RedisTokenRepo{
		client: client,
	}
}

func (r *RedisTokenRepo) Create(ctx context.Context, token model.RefreshToken) error {
	payload, err := encode(token)
	if err != nil {
		return err
	}

	ok, err := r.client.SetNX(ctx, tokenPrefix+token.Value, payload, safeTTL(token.ExpiresAt)).Result()
	if err != nil {
		return customErrors.WrapInternal(err, "CreateRefreshToken")
	}
	if !ok {
		return customErrors.ErrAlreadyExists
	}

	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		index(ctx, p, token)
		return nil
	})
	if err != nil {
		return customErrors.WrapInternal(err, "index refresh token")
	}
	return nil
}

func (r *RedisTokenRepo) Get(ctx context.Context, value string) (model.RefreshToken, error) {
	raw, err := r.client.Get(ctx, tokenPrefix+value).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return model.RefreshToken{}, customErrors.ErrNotFound
	case err != nil:
		return model.RefreshToken{}, customErrors.WrapInternal(err, "GetRefreshToken")
	}
	return decode(value, raw)
}

// Delete relies on GETDEL: only one caller can receive the value.
func (r *RedisTokenRepo) Delete(ctx context.Context, value string) (bool, error) {
	raw, err := r.client.GetDel(ctx, tokenPrefix+value).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, customErrors.WrapInternal(err, "DeleteRefreshToken")
	}

	tok, err := decode(value, raw)
	if err != nil {
		return true, err
	}
	if err := r.unindex(ctx, tok.UserID, value); err != nil {
		return true, err
	}
	return true, nil
}

// Rotate watches both keys; a concurrent change to either makes this call lose.
func (r *RedisTokenRepo) Rotate(ctx context.Context, old string, next model.RefreshToken) (bool, error) {
	payload, err := encode(next)
	if err != nil {
		return false, err
	}
	oldKey, nextKey := tokenPrefix+old, tokenPrefix+next.Value

	var swapped bool
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, oldKey).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			return nil
		case err != nil:
			return err
		}
		prev, err := decode(old, raw)
		if err != nil {
			return err
		}
		taken, err := tx.Exists(ctx, nextKey).Result()
		if err != nil {
			return err
		}
		if taken > 0 {
			return customErrors.ErrAlreadyExists
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, oldKey)
			unindexPipe(ctx, p, prev.UserID, old)
			p.Set(ctx, nextKey, payload, safeTTL(next.ExpiresAt))
			index(ctx, p, next)
			return nil
		})
		if err != nil {
			return err
		}
		swapped = true
		return nil
	}, oldKey, nextKey)

	switch {
	case errors.Is(err, redis.TxFailedErr):
		return false, nil
	case customErrors.IsAlreadyExists(err):
		return false, customErrors.ErrAlreadyExists
	case err != nil:
		return false, customErrors.WrapInternal(err, "RotateRefreshToken")
	}
	return swapped, nil
}

func (r *RedisTokenRepo) DeleteAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	setKey := userPrefix + userID.String()
	values, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return 0, customErrors.WrapInternal(err, "DeleteAllForUser")
	}
	if len(values) == 0 {
		return 0, nil
	}

	keys := make([]string, len(values))
	members := make([]any, len(values))
	indexed := make([]any, len(values))
	for i, v := range values {
		keys[i] = tokenPrefix + v
		members[i] = v
		indexed[i] = member(userID, v)
	}

	var del *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.Del(ctx, keys...)
		p.SRem(ctx, setKey, members...)
		p.ZRem(ctx, expiryIndex, indexed...)
		return nil
	})
	if err != nil {
		return 0, customErrors.WrapInternal(err, "DeleteAllForUser")
	}
	return del.Val(), nil
}

// PurgeExpired walks the expiry index up to now inclusive.
func (r *RedisTokenRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	members, err := r.client.ZRangeByScore(ctx, expiryIndex, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, customErrors.WrapInternal(err, "PurgeExpired")
	}

	var purged int64
	for _, m := range members {
		uid, value, ok := parseMember(m)
		if !ok {
			if err := r.client.ZRem(ctx, expiryIndex, m).Err(); err != nil {
				return purged, customErrors.WrapInternal(err, "PurgeExpired")
			}
			continue
		}

		tok, err := r.Get(ctx, value)
		switch {
		case customErrors.IsNotFound(err):
			// ключ уже истёк сам; остались только индексы
			if err := r.unindex(ctx, uid, value); err != nil {
				return purged, err
			}
			continue
		case err != nil:
			return purged, err
		}
		if !tok.Expired(now) {
			continue
		}
		removed, err := r.Delete(ctx, value)
		if err != nil {
			return purged, err
		}
		if removed {
			purged++
		}
	}
	return purged, nil
}

func (r *RedisTokenRepo) unindex(ctx context.Context, userID uuid.UUID, value string) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		unindexPipe(ctx, p, userID, value)
		return nil
	})
	if err != nil {
		return customErrors.WrapInternal(err, "unindex refresh token")
	}
	return nil
}

func index(ctx context.Context, p redis.Pipeliner, token model.RefreshToken) {
	p.SAdd(ctx, userPrefix+token.UserID.String(), token.Value)
	p.ZAdd(ctx, expiryIndex, redis.Z{Score: float64(token.ExpiresAt.UnixMilli()), Member: member(token.UserID, token.Value)})
}

func unindexPipe(ctx context.Context, p redis.Pipeliner, userID uuid.UUID, value string) {
	p.SRem(ctx, userPrefix+userID.String(), value)
	p.ZRem(ctx, expiryIndex, member(userID, value))
}

func encode(token model.RefreshToken) ([]byte, error) {
	payload, err := json.Marshal(record{UserID: token.UserID, CreatedAt: token.CreatedAt.UTC(), ExpiresAt: token.ExpiresAt.UTC()})
	if err != nil {
		return nil, customErrors.WrapInternal(err, "marshal refresh token")
	}
	return payload, nil
}

func decode(value string, raw []byte) (model.RefreshToken, error) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.RefreshToken{}, customErrors.WrapInternal(err, "decode refresh token")
	}
	return model.RefreshToken{
		Value:     value,
		UserID:    rec.UserID,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

func safeTTL(exp time.Time) time.Duration {
	ttl := time.Until(exp) + expiryGrace
	if ttl <= 0 {
		// задаём минимальный TTL, чтобы ключ всё-таки исчез
		return time.Minute
	}
	return ttl
}
