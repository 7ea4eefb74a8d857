// Package control loads engine configuration from TOML files and
// propagates runtime reloads to registered listeners.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package control
