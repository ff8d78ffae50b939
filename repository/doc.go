// Package repository holds the generic data-access layer shared by the
// registry tables.
//
// BaseRepository wraps a go-repository-bun repository (usually decorated by
// repositorycache) and turns every operation into a Result: success carries
// Data and, for lists, the total Count; failure carries an *Error whose Code
// comes from MapError. No operation returns a Go error or panics.
//
// Each call produces one audit record through an audit.Emitter. The action is
// the upper-cased "<TABLE>_<OPERATION>", the actor is taken from the context
// (audit.WithActor) and falls back to Config.Actor.
//
// Queries are described with Spec, a small typed condition tree:
//
//	spec := repository.Spec{OrderBy: "last_name", Limit: 20}.
//		Where(repository.Eq("barangay_code", code)).
//		WhereGroup(repository.AnyOf(
//			repository.ILike("first_name", repository.Contains(term)),
//			repository.ILike("last_name", repository.Contains(term)),
//		))
//	res := base.ExecuteQuery(ctx, spec, "search")
package repository
