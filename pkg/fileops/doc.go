// Package fileops provides the filesystem primitives the organizer is built on.
//
// Every failure surfaces as an *Error carrying a Kind from a closed set.
// Translate is the only place where OS errors are interpreted; callers match
// with KindOf, IsKind or errors.Is against the ErrXxx sentinels.
//
// # Opening files
//
// OpenNoFollow opens a path read-only and lets the kernel refuse a symbolic
// link in the final component on the same call that returns the descriptor.
// Validation done earlier on the path name is therefore never trusted for the
// open itself. On Linux and macOS, DescriptorPath reports where the descriptor really
// points so that containment can be re-checked against the opened object.
//
// # Creating files without clobbering
//
// ExclusiveCopy creates its destination with O_EXCL and LinkNoClobber uses a
// hard link; both fail with KindAlreadyExists instead of replacing a file that
// appeared concurrently. AtomicWriteFile replaces small metadata files through
// a same-directory temporary file and a rename.
//
//	if err := fileops.LinkNoClobber(src, dst); fileops.IsKind(err, fileops.KindCrossDevice) {
//	    err = fileops.ExclusiveCopy(src, dst)
//	}
//
// # Path checks
//
// ValidatePathSecurity, IsWithin, MatchAny and IsReservedName are pure checks
// on path strings. SecureDirectoryScanner walks a tree through an os.Root and
// never reports or follows symbolic links.
package fileops
