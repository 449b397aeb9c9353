package octobuild

// Version identifies this build of octobuild, advertised by the builder
// command to its coordinator so a stale builder binary is visible in the
// registry listing.
const Version = "0.1.0"
