// Package services turns introspected catalogs into runnable modules.
//
// For every table it generates:
//   - create, read, update and delete over the table's keys (AutocrudGenerator)
//   - readWithRelated, which nests rows along the referential graph (NestedReader)
//
// Each module runs through a Pipeline: before handlers, the authorization
// gate, the operation itself and after handlers, all inside one transaction
// of the module's database. EngineManager owns the databases and swaps in a
// new set of pipelines on every reload; Client calls modules in process.
package services
