// Package storage distributes assembled clips and keeps the temporary
// archive within budget.
//
// Every clip goes to the permanent video host, where it starts unlisted.
// When the archive is enabled, a copy also goes to an S3-compatible bucket
// that the Cleaner prunes by age, and by oldest-first emergency deletion
// when utilisation crosses the critical threshold. Folder, playlist and
// object names all come from the club, the season and the clip kind, so
// re-running a job lands clips in the same place.
package storage
