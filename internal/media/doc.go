// Package media finds and prunes the photos and videos the motion daemon writes.
//
// "Newest" means newest by creation time: inode change time (ctime) on Linux,
// which is what the event scripts have always used, and modification time on
// other platforms.
package media
