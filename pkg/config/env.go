/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// envPrefix namespaces all configuration override variables.
const envPrefix = "MOBILECTL_"

// applyEnvOverrides overlays environment variables onto cfg after the file
// load. Variable names follow the json tags, nested structs joined with
// underscores: MOBILECTL_BACKEND_URL sets Backend.URL. Only scalar fields
// (strings, booleans, integers, durations) are overridable; lists such as
// the device capability table stay file-only. Unparseable values are logged
// and skipped.
func (c *Config) applyEnvOverrides(cfg interface{}) {
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return
	}

	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return
	}

	c.overlayStruct(v, envPrefix)
}

func (c *Config) overlayStruct(v reflect.Value, prefix string) {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}

		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}

		envName := prefix + strings.ToUpper(name)

		if field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct {
			// Sections absent from the file only materialize when a
			// variable under their prefix is set.
			if field.IsNil() {
				if !hasEnvWithPrefix(envName + "_") {
					continue
				}

				field.Set(reflect.New(field.Type().Elem()))
			}

			c.overlayStruct(field.Elem(), envName+"_")

			continue
		}

		if field.Kind() == reflect.Struct {
			c.overlayStruct(field, envName+"_")
			continue
		}

		value, ok := os.LookupEnv(envName)
		if !ok || value == "" {
			continue
		}

		if c.setScalar(field, value) {
			c.logger.Debug().Str("env", envName).Msg("Applied configuration override")
		} else {
			c.logger.Warn().Str("env", envName).Msg("Ignoring unparseable configuration override")
		}
	}
}

func hasEnvWithPrefix(prefix string) bool {
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, prefix) {
			return true
		}
	}

	return false
}

// setScalar parses value into a scalar field, reporting whether it applied.
func (*Config) setScalar(field reflect.Value, value string) bool {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
		return true

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false
		}

		field.SetBool(b)

		return true

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// Duration-typed fields take the "5s" string form.
		if strings.HasSuffix(field.Type().Name(), "Duration") {
			d, err := time.ParseDuration(value)
			if err != nil {
				return false
			}

			field.SetInt(int64(d))

			return true
		}

		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return false
		}

		field.SetInt(n)

		return true

	default:
		return false
	}
}
