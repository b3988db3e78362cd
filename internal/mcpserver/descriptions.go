package mcpserver

// Tool descriptions with interpretation guidance for LLMs.

func describeRemoveUnused() string {
	return `Removes unused imports (and optionally unused local variables) from Python source text and returns the fixed text.

USE WHEN:
- Cleaning up a file you just edited before showing it to the user
- Dropping imports left behind after a refactor
- Replacing "from m import *" with the names actually used (expand_star_imports)

INTERPRETING RESULTS:
- fixed: the rewritten source; identical to the input when unchanged is true
- removals: each binding removed, with its tag (unused-import, unused-variable,
  unused-star-import, partially-used-multi-import) and source range
- skipped: dead bindings left in place because their line carries a comment or
  "# noqa", or because removing them would touch live code
- warnings: star-imports whose module could not be read stay untouched

RESULT FIELDS:
- fixed, unchanged, passes, removals, skipped, warnings, diff`
}

func describeCheckPaths() string {
	return `Checks Python files and directories for unused imports and variables without modifying anything.

USE WHEN:
- Auditing a package for dead imports before a release
- Previewing what "autoflake --in-place" would change
- Verifying a cleanup left nothing behind

INTERPRETING RESULTS:
- status per file: changed (would be rewritten), unchanged, or failed (did not parse)
- diff: unified diff with original/ and fixed/ labels for each changed file
- summary: totals of files and of removed imports, variables and star-imports

RESULT FIELDS:
- files[].path, files[].status, files[].removals, files[].diff, files[].error
- summary.files, summary.changed, summary.failed, summary.imports_removed`
}
