package flags

const Verbose = `verbose`
const Quiet = `quiet`
const Debug = `debug`
const Help = `help`
const GroupDir = `groupdir`
const BackupEncrypt = `encrypt`
const BackupLabel = `label`
const BackupLookup = `lookup`
const BackupSkipEject = `skipeject`
const BackupFilesystem = `fstype`
const BackupMountPoint = `mpoint`
const BackupSkipBackedUp = `skip-backed-up`
const BackupKeepLeadingDir = `keep-leading-dir`
const BackupPreserveAtime = `preserve-atime`
const BackupPreserveOwnership = `preserve-ownership`
