package txadmin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Maxos-programming/txAdmin/bantemplate"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

var ConfigSearchOrder = []string{
	"config",
	"/usr/local/var/txadmin/config",
	"/opt/homebrew/var/txadmin/config",
}

type Config struct {
	Name           string `yaml:"Name" validate:"required"`                   // Shown in API responses and the terminal form title
	TemplatesFile  string `yaml:"TemplatesFile" validate:"required,yamlext"`  // Path to the ban template collection
	BanListFile    string `yaml:"BanListFile" validate:"required,yamlext"`    // Path to the ban ledger
	APIKeyHash     string `yaml:"APIKeyHash" validate:"omitempty,bcrypthash"` // bcrypt hash of the API key; write endpoints are disabled when empty
	StrictIDLength bool   `yaml:"StrictIDLength"`                             // Require 21 character template IDs
	ListenAddr     string `yaml:"ListenAddr"`                                 // Default API listen address
}

func LoadConfig(path string) (*Config, error) {
	var config Config

	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %v", err)
	}

	if err := yaml.Unmarshal(yamlFile, &config); err != nil {
		return nil, fmt.Errorf("unmarshal YAML: %v", err)
	}

	validate := validator.New()
	if err = validate.RegisterValidation("yamlext", func(fl validator.FieldLevel) bool {
		ext := strings.ToLower(filepath.Ext(fl.Field().String()))
		return ext == ".yaml" || ext == ".yml"
	}); err != nil {
		return nil, fmt.Errorf("register validation: %v", err)
	}
	if err = validate.RegisterValidation("bcrypthash", func(fl validator.FieldLevel) bool {
		_, err := bcrypt.Cost([]byte(fl.Field().String()))
		return err == nil
	}); err != nil {
		return nil, fmt.Errorf("register validation: %v", err)
	}

	if err = validate.Struct(config); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			for _, fieldErr := range validationErrs {
				switch fieldErr.Tag() {
				case "yamlext":
					return nil, fmt.Errorf("%s must have a .yaml or .yml extension (got: %s)", fieldErr.Field(), fieldErr.Value())
				case "bcrypthash":
					return nil, fmt.Errorf("%s must be a bcrypt hash; generate one with -hash-key", fieldErr.Field())
				}
			}
		}
		return nil, fmt.Errorf("validate config: %v", err)
	}

	// Relative paths are relative to the config dir.
	if !filepath.IsAbs(config.TemplatesFile) {
		config.TemplatesFile = filepath.Join(filepath.Dir(path), config.TemplatesFile)
	}
	if !filepath.IsAbs(config.BanListFile) {
		config.BanListFile = filepath.Join(filepath.Dir(path), config.BanListFile)
	}

	return &config, nil
}

// CheckAPIKey reports whether key matches the configured hash. No key matches when no
// hash is configured.
func (c *Config) CheckAPIKey(key string) bool {
	if c.APIKeyHash == "" || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.APIKeyHash), []byte(key)) == nil
}

// HashAPIKey returns the bcrypt hash to store as APIKeyHash.
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// TemplateValidator returns the validator the template store should use.
func (c *Config) TemplateValidator() *bantemplate.Validator {
	if c.StrictIDLength {
		return bantemplate.NewValidator(bantemplate.WithStrictIDLength())
	}
	return bantemplate.NewValidator()
}
