// Package features reads a client's feature file and encrypts it for the
// level-sites.
package features

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/common"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/fixedpoint"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/oracle"
)

// Vector maps a feature name to its value encrypted under both backends. It
// is read-only for the duration of a run.
type Vector map[string]*oracle.Ciphertexts

// Names returns the feature names in sorted order.
func (v Vector) Names() []string {
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Parse reads name<TAB>value lines. Blank lines are skipped; a later line
// overrides an earlier one with the same name.
func Parse(r io.Reader) (map[string]string, error) {
	out := make(map[string]string)
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		i := strings.IndexByte(text, '\t')
		if i < 0 {
			return nil, common.EncodingError(fmt.Sprintf("line %d: missing tab", line), nil)
		}
		name := strings.TrimSpace(text[:i])
		if name == "" {
			return nil, common.EncodingError(fmt.Sprintf("line %d: empty feature name", line), nil)
		}
		out[name] = strings.TrimSpace(text[i+1:])
	}
	if err := scanner.Err(); err != nil {
		return nil, common.EncodingError("reading features", err)
	}
	return out, nil
}

// Encrypt encodes every raw value at precision and encrypts it under both
// backends.
func Encrypt(raw map[string]string, precision int, pub oracle.PublicKeys, random io.Reader) (Vector, error) {
	out := make(Vector, len(raw))
	for name, value := range raw {
		x, err := fixedpoint.Encode(value, precision)
		if err != nil {
			return nil, common.EncodingError(fmt.Sprintf("feature %q", name), err)
		}
		ct, err := oracle.EncryptValue(random, pub, x)
		if err != nil {
			return nil, common.EncodingError(fmt.Sprintf("encrypting feature %q", name), err)
		}
		out[name] = ct
	}
	return out, nil
}

// EncodeFile parses and encrypts the feature file at path.
func EncodeFile(path string, precision int, pub oracle.PublicKeys, random io.Reader) (Vector, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, common.EncodingError("opening feature file", err)
	}
	defer f.Close()

	raw, err := Parse(f)
	if err != nil {
		return nil, err
	}
	return Encrypt(raw, precision, pub, random)
}
