package mcpserver

// ScriptFormatContract describes the layout of every script nb2py generates
// and how notebook lines are routed into it.
const ScriptFormatContract = `# nb2py Script Format Contract

Every script generated from a notebook (` + "`" + `name.ipynb` + "`" + ` -> ` + "`" + `name.py` + "`" + `) has the same shape.

## Structure

` + "```" + `python
import os                          # header: every import line, in notebook order
os.environ["A"] = "1"              # mutations follow their anchoring import
import sys
sys.path.append("..")

if __name__ == '__main__':
    # %%
    """Markdown cell text joined by spaces"""

    #---

    x = 1                           # code cell body, indented 4 spaces
    ##%%time                        # magics and shell lines, commented out



##########################################################################
# This file was converted using nb2py: https://github.com/BardiaKh/nb2py #
##########################################################################
` + "```" + `

## Routing rules (first match wins)

1. A line containing ` + "`" + `!nb2py` + "`" + ` is dropped.
2. A line starting with ` + "`" + `import ` + "`" + ` or ` + "`" + `from ` + "`" + ` moves to the header.
3. A line containing ` + "`" + `os.environ` + "`" + ` is placed after the first ` + "`" + `import os` + "`" + ` / ` + "`" + `from os import` + "`" + `.
4. A line containing ` + "`" + `sys.path` + "`" + ` is placed after the first ` + "`" + `import sys` + "`" + ` / ` + "`" + `from sys import` + "`" + `.
5. A line starting with ` + "`" + `%` + "`" + ` or ` + "`" + `!` + "`" + ` becomes ` + "`" + `##` + "`" + ` + the line.
6. Everything else stays in the body. Triple-quoted strings spanning lines
   are rewritten as ` + "`" + `"...\n" +\` + "`" + ` chains of ordinary literals.

## Recovery policy

- ` + "`" + `drop` + "`" + ` (default): mutations with no anchoring import and unterminated
  triple-quoted strings are discarded and reported as warnings.
- ` + "`" + `keep` + "`" + `: they stay in the body, still reported as warnings.
- ` + "`" + `fail` + "`" + `: the conversion is rejected.

## Rules for notebook authors

1. Put ` + "`" + `import os` + "`" + ` / ` + "`" + `import sys` + "`" + ` before relying on ` + "`" + `os.environ` + "`" + ` / ` + "`" + `sys.path` + "`" + `.
2. Mark notebook-only lines with a ` + "`" + `# !nb2py` + "`" + ` comment to keep them out of the script.
3. Close every triple-quoted string in the cell that opens it.
`
