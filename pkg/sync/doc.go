/*
The sync package implements cacs's sync operations. It moves the configured
items between their targets on the user's machine and a clone of the sync
repository.

Every operation follows the same sequence of states:

	Idle -> Loading -> {Initializing, Pulling, Pushing, Checking} -> Done | Failed

Loading prepares the clone, fast-forwards it to the remote branch, and reads
the sync state recorded by the previous operation. Backup and restore only
touch the local machine, so they skip Loading.

Operations that overwrite local targets take a backup snapshot first, and
abort without writing anything if the snapshot can't be taken. Operations that
write to the repository abort before committing if any item fails to copy.

Fields listed in an item's ignore_fields never leave the local machine, and
are never overwritten by a pull.

cacs assumes that only one invocation runs at a time. Nothing guards the
backup directory, the clone, or the state file against concurrent access.
*/
package sync
