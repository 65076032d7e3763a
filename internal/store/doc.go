// Package store persists a ledger of bridged traffic using SQLite.
//
// # Overview
//
// Every message forwarded to the bot and every reply published back to a
// user is recorded as a LedgerEvent. The ledger is an audit trail only: the
// correlation state itself lives in memory and is not restored from here.
//
// # Data Model
//
//   - LedgerEvent: one forwarded message or published reply
//   - Direction: to_bot (user -> bot) or to_user (bot -> user)
//   - Status: sent, delivered or failed
//
// Events of one exchange share a CorrelationID, the Direct Line activity id
// of the forwarded message.
//
// # SQLite Configuration
//
// The store uses modernc.org/sqlite (pure Go) with WAL mode:
//
//	PRAGMA journal_mode=WAL;
//
// Database file locations:
//
//   - Production: /var/lib/botline/ledger.db
//   - Development: ~/.local/share/botline/ledger.db
//   - Testing: a file under t.TempDir()
//
// # Errors
//
//   - ErrEventNotFound: requested event does not exist
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests that do not need SQLite.
package store
