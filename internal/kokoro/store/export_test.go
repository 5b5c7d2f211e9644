package store

import "io/fs"

// RunMigrationsFrom exposes the migration runner to tests so they can feed
// it synthetic migration trees.
func (s *Store) RunMigrationsFrom(fsys fs.FS) error {
	return s.runMigrations(fsys)
}
