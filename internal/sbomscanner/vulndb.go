// Package sbomscanner discovers dependency lockfiles, builds a package
// graph from them, and matches that graph against a persisted
// vulnerability database.
package sbomscanner

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/dongwonkwak/ironpost/internal/ironcore"
)

// DefaultDBPath is the default on-disk location of the vulnerability
// database.
const DefaultDBPath = "/var/lib/ironpost/vulndb.db"

// vulnSchemaVersion guards against opening a database written by an
// incompatible future schema.
const vulnSchemaVersion = "1"

const bucketMeta = "meta"

// bucketForEcosystem returns the bbolt bucket name holding every
// vulnerability record for one ecosystem — one bucket per ecosystem
// keeps the O(1) (package, ecosystem) lookup a single bucket.Get with
// no secondary index, since the caller already knows which ecosystem a
// lockfile belongs to.
func bucketForEcosystem(eco ironcore.Ecosystem) string {
	return "vulns_" + string(eco)
}

// VulnRecord is the persisted, JSON-encoded form of a Vulnerability
// entry plus any sibling vulnerabilities affecting the same package,
// since a package can have more than one open CVE.
type VulnRecord struct {
	Package         string                 `json:"package"`
	Vulnerabilities []ironcore.Vulnerability `json:"vulnerabilities"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// VulnDB wraps a BoltDB instance with typed accessors for vulnerability
// lookups: bbolt's single-writer ACID transactions and checksum-verified
// open, over one bucket per ecosystem.
type VulnDB struct {
	db *bolt.DB
}

// OpenVulnDB opens (or creates) the BoltDB file at path, creating one
// bucket per known ecosystem plus the schema-version meta bucket.
func OpenVulnDB(path string) (*VulnDB, error) {
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, &ironcore.StorageError{Op: "open", Reason: err.Error()}
	}

	buckets := []string{bucketMeta}
	for _, eco := range []ironcore.Ecosystem{ironcore.EcosystemCargo, ironcore.EcosystemNpm, ironcore.EcosystemGo, ironcore.EcosystemPip} {
		buckets = append(buckets, bucketForEcosystem(eco))
	}

	if err := bdb.Update(func(tx *bolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		}
		meta := tx.Bucket([]byte(bucketMeta))
		if meta.Get([]byte("schema_version")) == nil {
			return meta.Put([]byte("schema_version"), []byte(vulnSchemaVersion))
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, &ironcore.StorageError{Op: "init", Reason: err.Error()}
	}

	d := &VulnDB{db: bdb}
	if err := d.checkSchemaVersion(); err != nil {
		_ = bdb.Close()
		return nil, err
	}
	return d, nil
}

func (d *VulnDB) checkSchemaVersion() error {
	return d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketMeta)).Get([]byte("schema_version"))
		if string(v) != vulnSchemaVersion {
			return &ironcore.StorageError{Op: "schema-check", Reason: fmt.Sprintf("database has %q, scanner requires %q", v, vulnSchemaVersion)}
		}
		return nil
	})
}

// Close closes the underlying BoltDB file.
func (d *VulnDB) Close() error {
	return d.db.Close()
}

// Put upserts the vulnerability set for one package within one
// ecosystem.
func (d *VulnDB) Put(eco ironcore.Ecosystem, pkg string, vulns []ironcore.Vulnerability) error {
	rec := VulnRecord{Package: pkg, Vulnerabilities: vulns, UpdatedAt: time.Now().UTC()}
	data, err := json.Marshal(rec)
	if err != nil {
		return &ironcore.StorageError{Op: "marshal", Reason: err.Error()}
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketForEcosystem(eco)))
		if b == nil {
			return &ironcore.StorageError{Op: "put", Reason: fmt.Sprintf("unknown ecosystem %q", eco)}
		}
		return b.Put([]byte(pkg), data)
	})
}

// Lookup returns every known vulnerability affecting pkg within eco.
// Returns (nil, false) if the package has no recorded vulnerabilities —
// not an error, since most packages are clean.
func (d *VulnDB) Lookup(eco ironcore.Ecosystem, pkg string) ([]ironcore.Vulnerability, bool) {
	var out []ironcore.Vulnerability
	found := false
	_ = d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketForEcosystem(eco)))
		if b == nil {
			return nil
		}
		data := b.Get([]byte(pkg))
		if data == nil {
			return nil
		}
		var rec VulnRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil
		}
		out = rec.Vulnerabilities
		found = true
		return nil
	})
	return out, found
}

// Count returns the number of distinct packages with recorded
// vulnerabilities across every ecosystem. Used to detect an empty
// (not-yet-populated) database so the scanner can fall back to
// degraded, SBOM-only mode.
func (d *VulnDB) Count() int {
	total := 0
	_ = d.db.View(func(tx *bolt.Tx) error {
		for _, eco := range []ironcore.Ecosystem{ironcore.EcosystemCargo, ironcore.EcosystemNpm, ironcore.EcosystemGo, ironcore.EcosystemPip} {
			b := tx.Bucket([]byte(bucketForEcosystem(eco)))
			if b == nil {
				continue
			}
			total += b.Stats().KeyN
		}
		return nil
	})
	return total
}
