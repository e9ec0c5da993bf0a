package policy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

// LoadPolicyFile loads one YAML policy file, merges it onto the default
// policy and registers it under the file's own id. The file must set a
// non-default id. Like every resolver operation, failure falls back to the
// default policy and reports the cause.
func (r *Resolver) LoadPolicyFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return r.Default(), fmt.Errorf("reading policy file: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		r.logger.Warn("unparseable policy file, using default",
			zap.String("path", path),
			zap.Error(err))
		return r.Default(), fmt.Errorf("%w: parsing %s: %v", ErrInvalidPolicy, filepath.Base(path), err)
	}

	id := k.String("id")
	if id == "" {
		err := fmt.Errorf("%w: policy file %s sets no id", ErrInvalidPolicy, filepath.Base(path))
		r.logger.Warn("policy file rejected", zap.String("path", path), zap.Error(err))
		return r.Default(), err
	}
	return r.CreateCustomPolicy(id, data)
}

// LoadPolicyDir loads every .yaml/.yml file in a directory, in name order
// for deterministic precedence. One bad file does not block the others;
// the joined error reports every failure.
func (r *Resolver) LoadPolicyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading policy directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if isPolicyFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if _, err := r.LoadPolicyFile(filepath.Join(dir, name)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func isPolicyFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
