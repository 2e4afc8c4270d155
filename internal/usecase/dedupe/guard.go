package dedupe

import (
	"listing-agent/internal/application/port/output"
	"listing-agent/internal/domain/entity"
)

type Decision string

const (
	Accept          Decision = "accept"
	AcceptDuplicate Decision = "accept_duplicate"
	StopLoop        Decision = "stop_loop"
)

const defaultRepeatLimit = 2

type Config struct {
	// RepeatLimit is the number of consecutive repeats of the previous
	// page that stops the run.
	RepeatLimit int
	// StrictURLLoop stops on any revisited URL even when its content changed.
	StrictURLLoop bool
}

func DefaultConfig() Config {
	return Config{RepeatLimit: defaultRepeatLimit}
}

type Guard struct {
	cfg    Config
	logger output.LoggerPort
}

func New(cfg Config, logger output.LoggerPort) *Guard {
	if cfg.RepeatLimit <= 0 {
		cfg.RepeatLimit = defaultRepeatLimit
	}
	return &Guard{
		cfg:    cfg,
		logger: logger.WithField("component", "duplicate_guard"),
	}
}

type Result struct {
	Decision    Decision
	Fingerprint string
	URLKey      string
	URLSeen     bool
}

// Check records content and url in state and decides whether the run
// may continue. Membership is tested before insertion.
func (g *Guard) Check(state *entity.RunState, content, url string) Result {
	hash := Fingerprint(content)
	key := NormalizeURL(url)

	_, urlSeen := state.VisitedURLs[key]
	_, hashSeen := state.ContentHashes[hash]
	repeat := state.LastHash != "" && hash == state.LastHash

	if repeat {
		state.ConsecutiveDuplicateCount++
	} else {
		state.ConsecutiveDuplicateCount = 0
	}

	state.VisitedURLs[key] = struct{}{}
	state.ContentHashes[hash] = struct{}{}
	state.LastHash = hash

	res := Result{Fingerprint: hash, URLKey: key, URLSeen: urlSeen}

	switch {
	case state.ConsecutiveDuplicateCount >= g.cfg.RepeatLimit:
		res.Decision = StopLoop
	case urlSeen && (g.cfg.StrictURLLoop || hashSeen):
		res.Decision = StopLoop
	case hashSeen:
		res.Decision = AcceptDuplicate
	default:
		res.Decision = Accept
	}

	g.logger.Debug("Duplicate check",
		"url", key,
		"fingerprint", hash,
		"url_seen", urlSeen,
		"hash_seen", hashSeen,
		"consecutive_duplicates", state.ConsecutiveDuplicateCount,
		"decision", res.Decision,
	)

	return res
}
