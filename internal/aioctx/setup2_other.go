//go:build linux && !(amd64 && aio_setup2)

package aioctx

// sysIOSetup2 is unset: context flags fail with EOPNOTSUPP.
const sysIOSetup2 = 0
