// Package registry implements the resident, household and user repositories
// on top of repository.BaseRepository.
//
// Each repository validates input with ozzo-validation before touching the
// database, so a VALIDATION_ERROR never reaches the store. Natural-key
// duplicate checks (household code, user email) run before inserts and are
// backed by the unique indexes: a conflict the pre-check missed still comes
// back as DUPLICATE_HOUSEHOLD_CODE or DUPLICATE_EMAIL.
package registry
