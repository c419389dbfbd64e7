// Package protocol implements the pure dispatch surface shared by all layer
// servers: URI-addressed resources, schema-validated tools and
// argument-templated prompts. Registries are plain name/pattern -> handler
// maps over membrane snapshots; they hold no domain state of their own and
// preserve registration order in every listing.
package protocol
