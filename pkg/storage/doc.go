/*
Package storage persists hazardfeed state in an embedded BoltDB file.

The Store interface is split by concern (PostStore, ZoneStore,
DisasterStore, UserStore) so that services depend only on what they use.
BoltStore implements all of them on top of a single database file,
<data-dir>/hazardfeed.db.

# Buckets

	posts        <unix-nanos>-<id>  → Post JSON   (ordered by creation time)
	post_index   <id>               → posts key
	zones        <000000..>         → Zone JSON   (current snapshot)
	disasters    <sequence>         → Disaster JSON (insertion order)
	users        <id>               → User JSON
	user_names   <lower(username)>  → user id
	user_emails  <lower(email)>     → user id

ListPosts walks the posts bucket backwards with a cursor, which yields the
newest-first order the feed needs without sorting.

# Zone snapshots

ReplaceZones deletes and recreates the zones bucket inside one write
transaction. BoltDB readers run on a consistent MVCC view, so a concurrent
ListZones returns the complete previous snapshot or the complete new one:

	store.ReplaceZones(batch) // one tx: drop old, write new
	zones, _ := store.ListZones()

# Errors

Missing records wrap types.ErrNotFound. Unique violations on post ids,
usernames and emails wrap ErrDuplicate. Anything else is an I/O or
encoding failure from BoltDB and is left to callers to classify.
*/
package storage
