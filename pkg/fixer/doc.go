/*
Package fixer applies the rule catalogue to files on disk.

	+-------------+      +-------------+      +-------------+
	|    walk     | ---> |    Fixer    | ---> | FileSystem  |
	| (paths seq) |      | (Run/File)  |      | (read/write)|
	+-------------+      +------+------+      +-------------+
	                            |
	                     +------+------+
	                     |    rule     |
	                     | (catalogue) |
	                     +-------------+

🎯 Purpose:
- Reads a file once, runs every rule over it in catalogue order
- Writes it back only when something changed
- Reports "Fixed N violations in <path>" per changed file and "Total fixes: N" per run

🔄 Failure handling:
A file that cannot be read, is not UTF-8, or cannot be written is reported and skipped;
the run ends with a table of failures and ErrFilesFailed. Options.FailFast stops at the
first failure instead.

🔍 Example:

	f, err := fixer.New(fixer.Options{Console: console})
	if err != nil {
		return err
	}
	summary, err := f.Run(ctx, walk.Files(ctx, cfg.Root, cfg.Include, cfg.Exclude))
*/
package fixer
