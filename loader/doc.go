// Package loader reads module sources from directory trees.
//
// A module lives in a directory holding a manifest: module.hcl,
// module.hcl.json, module.yaml or module.yml. HCL modules may split their
// definitions across every *.hcl and *.hcl.json file next to the manifest.
// YAML modules are a single file.
//
//	module "std.demo" {
//	  version = "1.2.0"
//	  blocks  = ["scale"]
//	  graphs  = ["pipeline"]
//	}
//
//	block "scale" {
//	  input "x" { type = number }
//	  output "result" { type = number }
//	}
//
//	graph "pipeline" {
//	  entries = ["x"]
//	  output  = "scaled"
//
//	  node "scaled" {
//	    use    = "std.demo/scale@^1"
//	    inputs = [input.x]
//	  }
//	}
//
// Node inputs written as node.<id> or input.<entry> become references;
// any other expression is evaluated once at load time into a literal.
// Inside macros, expressions over param.<name> are kept and evaluated at
// expansion time.
//
// The Loader implements registry.Loader. Every I/O and parse failure is
// reported as an *errors.LoadError, one per failing file.
package loader
