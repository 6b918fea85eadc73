/*
Package config holds the run configuration for mapor.

	            +-------------+
	            |   Config    |
	            |  (Settings) |
	            +------+------+
	                   |
	      +------------+------------+
	      |            |            |
	+-----+----+ +-----+----+ +-----+----+
	|   YAML   | |   HCL    | |   JSON   |
	|  Parser  | |  Parser  | |  Parser  |
	+----------+ +----------+ +----------+

🎯 Purpose:
- Lifts the scan root and file globs out of the binary into a value
- Loads that value from .mapor.{yaml,yml,hcl,json} when present
- Fills in defaults: the crates directory, every .rs file, one job

🔍 Example:

	cfg, err := config.Discover(ctx, ".")
	if err != nil {
		return err
	}
	cfg.Root = "crates/zjj"
	if err := cfg.Validate(); err != nil {
		return err
	}

The rule catalogue is deliberately not configurable; see package rule.
*/
package config
