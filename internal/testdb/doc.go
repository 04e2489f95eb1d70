// Package testdb provides helpers for integration tests that need a real
// PostgreSQL or Redis server.
//
// Tests skip themselves when the matching environment variable is not set:
//
//	func TestCollection_Integration(t *testing.T) {
//	    pool := testdb.GetTestPoolWithT(t)
//
//	    testdb.WithTx(t, pool, func(t *testing.T, tx pgx.Tx) {
//	        db := postgres.NewDatabase(tx)
//	        // ...
//	    })
//	}
//
// PostgreSQL tests run inside a transaction that is rolled back when the
// test completes, so they do not interfere with each other. Redis tests
// get a unique key prefix that is deleted on cleanup.
package testdb
