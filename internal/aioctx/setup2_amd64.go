//go:build linux && amd64 && aio_setup2

package aioctx

// sysIOSetup2 is the extended setup call from the polled-aio patchset. It
// has no mainline number, so it is only compiled in with the aio_setup2 tag
// for kernels carrying the patches.
const sysIOSetup2 = 335
