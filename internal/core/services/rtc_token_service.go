package services

import (
	"context"
	"fmt"
	"time"

	"carelink/internal/core/ports"
	"carelink/pkg/rtctoken"

	"go.uber.org/zap"
)

// RTCTokenService mints media-relay access tokens and optionally reuses
// cached ones for the remainder of their lifetime, so clients re-joining
// the same channel do not churn tokens.
type RTCTokenService struct {
	appID          string
	appCertificate string
	defaultTTL     int
	cache          ports.TokenCache // may be nil
	logger         *zap.SugaredLogger
}

// MintedToken is one issued media token. Cached is set when the token was
// reused from the cache rather than freshly signed.
type MintedToken struct {
	Token     string
	AppID     string
	UID       uint32
	Channel   string
	ExpiresAt time.Time
	Cached    bool
}

func NewRTCTokenService(appID, appCertificate string, defaultTTL int, cache ports.TokenCache, logger *zap.SugaredLogger) *RTCTokenService {
	return &RTCTokenService{
		appID:          appID,
		appCertificate: appCertificate,
		defaultTTL:     defaultTTL,
		cache:          cache,
		logger:         logger,
	}
}

// GenerateChannelToken returns a token for uid on channelName. ttlSeconds <= 0
// selects the configured default.
func (s *RTCTokenService) GenerateChannelToken(ctx context.Context, channelName string, uid uint32, ttlSeconds int, isPublisher bool) (*MintedToken, error) {
	if ttlSeconds <= 0 {
		ttlSeconds = s.defaultTTL
	}

	cacheKey := fmt.Sprintf("rtctoken:%s:%d", channelName, uid)
	if s.cache != nil {
		if token, expiresAt, ok, err := s.cache.Get(ctx, cacheKey); err != nil {
			s.logger.Warnw("token cache lookup failed", "channel", channelName, "error", err)
		} else if ok {
			s.logger.Debugw("reusing cached rtc token", "channel", channelName, "uid", uid)
			// The token's lifetime was fixed when it was minted; report the
			// entry's remaining expiry, not a fresh ttl from now.
			return &MintedToken{
				Token:     token,
				AppID:     s.appID,
				UID:       uid,
				Channel:   channelName,
				ExpiresAt: expiresAt,
				Cached:    true,
			}, nil
		}
	}

	token, err := rtctoken.BuildToken(s.appID, s.appCertificate, channelName, uid, ttlSeconds, isPublisher)
	if err != nil {
		return nil, fmt.Errorf("failed to build rtc token: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, token, ttlSeconds); err != nil {
			s.logger.Warnw("token cache store failed", "channel", channelName, "error", err)
		}
	}

	s.logger.Infow("minted rtc token", "channel", channelName, "uid", uid, "ttl_seconds", ttlSeconds, "publisher", isPublisher)

	return &MintedToken{
		Token:     token,
		AppID:     s.appID,
		UID:       uid,
		Channel:   channelName,
		ExpiresAt: time.Now().Add(time.Duration(ttlSeconds) * time.Second),
	}, nil
}
