package archive

// EntryTarget exposes entry path sanitising to the external test package.
var EntryTarget = entryTarget
