// Command shaderc compiles a shader source file and optionally dumps
// intermediate stages or runs an entry point on the reference VM.
//
// Usage:
//
//	shaderc [-target name] [-dump tokens|ast|symtab|asm] [-run entry] [-steps n] file.lum
package main

import (
	"flag"
	"fmt"
	"os"

	"lumen/pkg/fixp"
	"lumen/pkg/shader"
	"lumen/pkg/vm"
)

func main() {
	targetName := flag.String("target", "", "target name (default "+shader.DefaultTarget+")")
	dump := flag.String("dump", "", "dump a stage: tokens, ast, symtab or asm")
	entry := flag.String("run", "", "execute this entry point after compiling")
	steps := flag.Int("steps", 0, "step budget for -run (0 = default)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: shaderc [flags] file.lum")
		flag.PrintDefaults()
		os.Exit(2)
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read error:", err)
		os.Exit(1)
	}

	tgt, err := shader.ParseTarget(*targetName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	unit, err := shader.Compile(string(data), tgt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", flag.Arg(0), err)
		os.Exit(1)
	}

	switch *dump {
	case "":
	case "tokens":
		fmt.Printf("Tokens (%d)\n", len(unit.Tokens))
		for _, tok := range unit.Tokens {
			fmt.Println(" ", tok)
		}
	case "ast":
		fmt.Println("AST")
		for _, s := range unit.Stmts {
			fmt.Println(" ", s)
		}
	case "symtab":
		fmt.Print(unit.Table)
	case "asm":
		fmt.Print(unit.Prog.Disassemble())
	default:
		fmt.Fprintf(os.Stderr, "unknown dump stage %q\n", *dump)
		os.Exit(2)
	}

	if *entry == "" {
		if *dump == "" {
			fmt.Printf("%s: %d instructions, %d entry points, %d global words\n",
				flag.Arg(0), len(unit.Prog.Code), len(unit.Prog.Entries), unit.Prog.GlobalWords)
		}
		return
	}

	m := vm.New(unit.Prog)
	out, err := m.Run(*entry, *steps)
	if err != nil {
		fmt.Fprintln(os.Stderr, "run error:", err)
		os.Exit(1)
	}
	switch {
	case m.Trapped:
		msg := unit.Prog.TrapTable[m.TrapCode]
		fmt.Printf("%s trapped with code %d (%s) after %d steps\n", *entry, m.TrapCode, msg, m.Steps)
	case m.Discarded:
		fmt.Printf("%s discarded after %d steps\n", *entry, m.Steps)
	default:
		fmt.Printf("%s returned after %d steps:", *entry, m.Steps)
		for _, w := range out {
			fmt.Printf(" %d (%g)", w, fixp.Float(w))
		}
		fmt.Println()
	}
}
