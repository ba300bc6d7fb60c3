// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

// RepositoryRef identifies one repository on the configured host.
// Immutable once constructed; identity is owner/name.
type RepositoryRef struct {
	Host  string
	Owner string
	Name  string
	URL   string
}

// FullName returns the owner/name identity key.
func (r RepositoryRef) FullName() string {
	return r.Owner + "/" + r.Name
}
