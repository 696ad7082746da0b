package nodeconfig

import "fmt"

// ErrUnknownVersion is returned instead of panicking when a persisted
// config names a version newer than this binary knows how to upgrade
// from (spec.md §9: "the source throws on unknown versions; this
// becomes a typed error returned from the upgrade routine").
type ErrUnknownVersion struct {
	Version int
}

func (e ErrUnknownVersion) Error() string {
	return fmt.Sprintf("nodeconfig: unknown config version %d", e.Version)
}

// migration upgrades a config in place from one version to the next;
// each must be idempotent since Upgrade may be asked to run against a
// config that was already partially migrated by a crashed prior run.
type migration struct {
	from int
	to   int
	run  func(*Config)
}

// UpgradeChain lists every versioned migration this binary knows,
// applied in order (1→2, 2→3, …). It is empty today because
// CurrentVersion is still 1; future field additions append here rather
// than mutating DefaultConfig's meaning for existing deployments.
var UpgradeChain = []migration{}

// Upgrade walks cfg.Version forward through UpgradeChain to
// CurrentVersion, applying each migration in turn. A version with no
// matching migration and not already at CurrentVersion is unknown.
func Upgrade(cfg *Config) error {
	for cfg.Version < CurrentVersion {
		applied := false
		for _, m := range UpgradeChain {
			if m.from == cfg.Version {
				m.run(cfg)
				cfg.Version = m.to
				applied = true
				break
			}
		}
		if !applied {
			return ErrUnknownVersion{Version: cfg.Version}
		}
	}
	if cfg.Version > CurrentVersion {
		return ErrUnknownVersion{Version: cfg.Version}
	}
	return nil
}
