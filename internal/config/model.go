// internal/config/model.go
//
// Typed configuration model for the sitewide archive service.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                          – dotenv values,
//   • `conf/global.yaml`                       – primary static file,
//   • `SWARCH_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with the prefix `vault:` is resolved
// through the Vault client *after* unmarshalling, so the rest of the app
// only ever sees plain strings.
//
// Validation happens immediately after unmarshal; the service fails fast
// if required fields are missing.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`—Koanf ignores `yaml` tags
//     unless configured otherwise.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.

package config

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr string `koanf:"listen_addr" validate:"required,hostname_port"`
}

//
// Database section
//

// Database holds the cluster DSN and the table-prefix convention shared
// by every blog on the network.
//
// The DSN *template* is kept in YAML so operators can tweak host, port,
// or flags without touching Vault.  The *secret* portion (`Password`) may
// be a `vault:` URI and is injected at runtime, keeping credentials out
// of flat files and git history.
type Database struct {
	DSN         string `koanf:"dsn"          validate:"required"`
	Password    string `koanf:"password"`
	TablePrefix string `koanf:"table_prefix" validate:"required"`
}

//
// Network section
//

// Network holds multisite-wide settings that are not per-blog.
// MainBlogID anchors network-scoped operations (blog removal, visibility
// changes) whose origin blog no longer exists.
type Network struct {
	MainBlogID int64 `koanf:"main_blog_id" validate:"required,min=1"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime—never set in YAML or env.  The loader
// discovers `Root` (repo root or SWARCH_ROOT override) so later code can
// build absolute file paths.
type Paths struct {
	Root string // SWARCH_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	HTTP     HTTP     `koanf:"http"`
	Database Database `koanf:"database"`
	Network  Network  `koanf:"network"`
	Paths    Paths    `koanf:"-"` // not loaded from config files
}
