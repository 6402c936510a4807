// Package actions implements the workflow steps that touch the outside
// world: exporting a site archive from the source platform, running an
// external transformation command, uploading the artifact to object storage,
// starting the import on the target platform and writing the imported site
// identifier back to the source.
package actions
