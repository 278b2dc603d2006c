// Copyright 2026 The PCM Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pcm

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultManifest is loaded automatically by the daemon when present.
const DefaultManifest = "./apps.json"

// Record is one entry of an application manifest.  Records that could
// not be decoded are still returned, so that Registry.Load can report
// them alongside the ones that fail validation.
type Record struct {
	App          string   `json:"app" yaml:"app"`
	Name         string   `json:"name" yaml:"name"`
	Args         []string `json:"args" yaml:"args"`
	Num          int      `json:"num" yaml:"num"`
	PidFile      string   `json:"pidFile" yaml:"pidFile"`
	RestartCount int      `json:"restartCount" yaml:"restartCount"`

	// Source names the record for error messages, e.g. "apps.json[2]".
	Source string `json:"-" yaml:"-"`

	err error
}

// Definition converts the record into a definition for registration.
func (rec Record) Definition() Definition {
	return Definition{
		Name:         rec.Name,
		Path:         rec.App,
		Args:         rec.Args,
		Workers:      rec.Num,
		PidFile:      rec.PidFile,
		RestartLimit: rec.RestartCount,
	}
}

// Err returns the decoding error for the record, if any.
func (rec Record) Err() error {
	return rec.err
}

func badRecord(src string, e error) Record {
	return Record{Source: src, err: &ValidationError{Reason: e.Error()}}
}

// ReadManifest decodes a JSON (or, if yaml is true, YAML) array of
// records.  Only a malformed document as a whole is an error; each
// malformed element is returned as a Record carrying its error.
func ReadManifest(r io.Reader, name string, isYAML bool) ([]Record, error) {
	var recs []Record
	if isYAML {
		var nodes []yaml.Node
		if e := yaml.NewDecoder(r).Decode(&nodes); e != nil && e != io.EOF {
			return nil, fmt.Errorf("%s: %w", name, e)
		}
		for i := range nodes {
			src := fmt.Sprintf("%s[%d]", name, i)
			var rec Record
			if e := nodes[i].Decode(&rec); e != nil {
				recs = append(recs, badRecord(src, e))
				continue
			}
			rec.Source = src
			recs = append(recs, rec)
		}
		return recs, nil
	}

	var raw []json.RawMessage
	if e := json.NewDecoder(r).Decode(&raw); e != nil {
		return nil, fmt.Errorf("%s: %w", name, e)
	}
	for i, m := range raw {
		src := fmt.Sprintf("%s[%d]", name, i)
		var rec Record
		if e := json.Unmarshal(m, &rec); e != nil {
			recs = append(recs, badRecord(src, e))
			continue
		}
		rec.Source = src
		recs = append(recs, rec)
	}
	return recs, nil
}

// ReadManifestFile reads a manifest, choosing the format by extension.
func ReadManifestFile(path string) ([]Record, error) {
	f, e := os.Open(path)
	if e != nil {
		return nil, e
	}
	defer f.Close()
	ext := strings.ToLower(filepath.Ext(path))
	return ReadManifest(f, filepath.Base(path), ext == ".yaml" || ext == ".yml")
}
