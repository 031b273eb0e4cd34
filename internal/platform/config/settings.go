package config

import "time"

// Defaults applied when the corresponding variable is unset or invalid.
const (
	DefaultPort                  = "8080"
	DefaultLibraryRoot           = "./library"
	DefaultBufferSize            = 128 * 1024
	DefaultGlobalMaxStreams      = 200
	DefaultPerUserMaxStreams     = 8
	DefaultETagCacheMaxEntries   = 10000
	DefaultETagCacheEntryMaxAge  = time.Hour
	DefaultNowPlayingMaxEntries  = 1000
	DefaultNowPlayingEntryMaxAge = 30 * time.Minute
	DefaultCacheSweepInterval    = time.Minute
	DefaultScrobbleRateLimit     = 120
	DefaultShutdownTimeout       = 10 * time.Second
)

// Settings is the full runtime configuration of the server.
//
// Zero for GlobalMaxConcurrentStreams, PerUserMaxConcurrentStreams and the
// cache MaxEntries fields means "unlimited"; zero for a MaxAge means entries
// never expire by age.
type Settings struct {
	Port      string
	LogLevel  string
	LogFormat string
	LogFile   string

	LibraryRoot string
	BufferSize  int

	GlobalMaxConcurrentStreams  int
	PerUserMaxConcurrentStreams int

	ETagCacheMaxEntries   int
	ETagCacheEntryMaxAge  time.Duration
	NowPlayingMaxEntries  int
	NowPlayingEntryMaxAge time.Duration
	CacheSweepInterval    time.Duration

	// ScrobbleRateLimit is the number of scrobble requests allowed per
	// user per minute. Zero disables the limit.
	ScrobbleRateLimit int

	ShutdownTimeout time.Duration
}

// FromEnv builds Settings from the process environment. Call Load first to
// pick up a .env file.
func FromEnv() Settings {
	s := Settings{
		Port:      GetEnv("PORT", DefaultPort),
		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "json"),
		LogFile:   GetEnv("LOG_FILE", ""),

		LibraryRoot: GetEnv("LIBRARY_ROOT", DefaultLibraryRoot),
		BufferSize:  GetEnvInt("STREAM_BUFFER_SIZE", DefaultBufferSize),

		GlobalMaxConcurrentStreams:  GetEnvInt("GLOBAL_MAX_CONCURRENT_STREAMS", DefaultGlobalMaxStreams),
		PerUserMaxConcurrentStreams: GetEnvInt("PER_USER_MAX_CONCURRENT_STREAMS", DefaultPerUserMaxStreams),

		ETagCacheMaxEntries:   GetEnvInt("ETAG_CACHE_MAX_ENTRIES", DefaultETagCacheMaxEntries),
		ETagCacheEntryMaxAge:  GetEnvDuration("ETAG_CACHE_ENTRY_MAX_AGE", DefaultETagCacheEntryMaxAge),
		NowPlayingMaxEntries:  GetEnvInt("NOW_PLAYING_MAX_ENTRIES", DefaultNowPlayingMaxEntries),
		NowPlayingEntryMaxAge: GetEnvDuration("NOW_PLAYING_ENTRY_MAX_AGE", DefaultNowPlayingEntryMaxAge),
		CacheSweepInterval:    GetEnvDuration("CACHE_SWEEP_INTERVAL", DefaultCacheSweepInterval),

		ScrobbleRateLimit: GetEnvInt("SCROBBLE_RATE_LIMIT", DefaultScrobbleRateLimit),
		ShutdownTimeout:   GetEnvDuration("SHUTDOWN_TIMEOUT", DefaultShutdownTimeout),
	}
	s.normalize()
	return s
}

// normalize replaces negative values with their defaults. Zero is kept
// because it carries the "unlimited" meaning.
func (s *Settings) normalize() {
	if s.BufferSize <= 0 {
		s.BufferSize = DefaultBufferSize
	}
	if s.GlobalMaxConcurrentStreams < 0 {
		s.GlobalMaxConcurrentStreams = DefaultGlobalMaxStreams
	}
	if s.PerUserMaxConcurrentStreams < 0 {
		s.PerUserMaxConcurrentStreams = DefaultPerUserMaxStreams
	}
	if s.ETagCacheMaxEntries < 0 {
		s.ETagCacheMaxEntries = DefaultETagCacheMaxEntries
	}
	if s.ETagCacheEntryMaxAge < 0 {
		s.ETagCacheEntryMaxAge = DefaultETagCacheEntryMaxAge
	}
	if s.NowPlayingMaxEntries < 0 {
		s.NowPlayingMaxEntries = DefaultNowPlayingMaxEntries
	}
	if s.NowPlayingEntryMaxAge < 0 {
		s.NowPlayingEntryMaxAge = DefaultNowPlayingEntryMaxAge
	}
	if s.CacheSweepInterval <= 0 {
		s.CacheSweepInterval = DefaultCacheSweepInterval
	}
	if s.ScrobbleRateLimit < 0 {
		s.ScrobbleRateLimit = DefaultScrobbleRateLimit
	}
	if s.ShutdownTimeout <= 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}
}
