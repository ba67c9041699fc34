package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/covenant/pkg/anchor"
	"github.com/Mindburn-Labs/covenant/pkg/settlement"
)

// SupportedSchemaVersions is the range of profile schema versions this build reads.
const SupportedSchemaVersions = ">= 1.0.0, < 2.0.0"

//go:embed profile.schema.json
var profileSchema string

const profileSchemaURL = "https://covenant.schemas.local/profile.schema.json"

// Profile is a deployment profile: who holds which role and the economic
// parameters of the settlement engine.
type Profile struct {
	SchemaVersion      string              `yaml:"schema_version" json:"schema_version"`
	Name               string              `yaml:"name" json:"name"`
	Currency           string              `yaml:"currency" json:"currency"`
	Principals         PrincipalsConfig    `yaml:"principals" json:"principals"`
	Council            []string            `yaml:"council" json:"council"`
	RequiredSignatures uint                `yaml:"required_signatures" json:"required_signatures"`
	FeeBps             int64               `yaml:"fee_bps" json:"fee_bps"`
	MinimumDeposit     int64               `yaml:"minimum_deposit" json:"minimum_deposit"`
	Accounts           settlement.Accounts `yaml:"accounts" json:"accounts"`
	Invariants         InvariantsConfig    `yaml:"invariants" json:"invariants"`
	Notifier           NotifierConfig      `yaml:"notifier" json:"notifier"`
	Anchor             anchor.StoreConfig  `yaml:"anchor" json:"anchor"`
}

// PrincipalsConfig names the holders of the single-principal roles.
type PrincipalsConfig struct {
	Owner         string `yaml:"owner" json:"owner"`
	SoleAuthority string `yaml:"sole_authority" json:"sole_authority"`
	CoupleOwner   bool   `yaml:"couple_owner" json:"couple_owner"`
}

// InvariantsConfig selects the health expression and where health is read from.
type InvariantsConfig struct {
	Expression string `yaml:"expression" json:"expression"`
	Source     string `yaml:"source" json:"source"` // "static" | "redis"
	RedisKey   string `yaml:"redis_key" json:"redis_key"`
	Risk       int64  `yaml:"risk" json:"risk"`
	Compliance int64  `yaml:"compliance" json:"compliance"`
}

// NotifierConfig controls external notification delivery.
type NotifierConfig struct {
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	BreakerThreshold int           `yaml:"breaker_threshold" json:"breaker_threshold"`
	BreakerReset     time.Duration `yaml:"breaker_reset" json:"breaker_reset"`
	Target           string        `yaml:"target" json:"target"`
}

// DefaultProfile is a single-operator development profile.
func DefaultProfile() *Profile {
	return &Profile{
		SchemaVersion:      "1.0.0",
		Name:               "dev",
		Currency:           "USD",
		Principals:         PrincipalsConfig{Owner: "owner", SoleAuthority: "owner"},
		Council:            []string{"owner"},
		RequiredSignatures: 1,
		FeeBps:             500,
		MinimumDeposit:     1000,
		Accounts: settlement.Accounts{
			Escrow:     "escrow",
			Recipient:  "recipient",
			BondEscrow: "bond-escrow",
			Foundation: "foundation",
		},
		Invariants: InvariantsConfig{Source: "static", Risk: 0, Compliance: 100},
	}
}

// LoadProfile reads, validates and decodes the YAML profile at path.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", path, err)
	}
	return ParseProfile(data)
}

// ParseProfile validates raw YAML against the embedded schema, checks the
// schema version and decodes it.
func ParseProfile(data []byte) (*Profile, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if err := CheckSchemaVersion(profile.SchemaVersion); err != nil {
		return nil, err
	}
	if profile.Currency == "" {
		profile.Currency = "USD"
	}
	profile.Currency = strings.ToUpper(profile.Currency)
	return &profile, nil
}

// CheckSchemaVersion rejects profiles written for an incompatible schema.
func CheckSchemaVersion(version string) error {
	constraint, err := semver.NewConstraint(SupportedSchemaVersions)
	if err != nil {
		return fmt.Errorf("invalid schema constraint: %w", err)
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("invalid schema_version %q: %w", version, err)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("profile schema %s not supported (need %s)", version, SupportedSchemaVersions)
	}
	return nil
}

func validateDocument(doc any) error {
	// Round-trip through JSON so the validator sees json.Number and plain maps.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("profile is not JSON-compatible: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("profile is not JSON-compatible: %w", err)
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(profileSchemaURL, strings.NewReader(profileSchema)); err != nil {
		return fmt.Errorf("profile schema load failed: %w", err)
	}
	schema, err := c.Compile(profileSchemaURL)
	if err != nil {
		return fmt.Errorf("profile schema compile failed: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("profile validation failed: %w", err)
	}
	return nil
}
