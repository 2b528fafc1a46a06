/*
 * npeblame - bytecode-level null-pointer-exception explainer
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// npeblame enriches a null-pointer exception's detail message with what was
// dereferenced and where the null came from. The analysis core is the same
// one an in-process agent would run off the host's exception event; this
// binary drives it offline against class files on disk.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"npeblame/code"
	"npeblame/constpool"
	"npeblame/globals"
	"npeblame/hostadapter"
	"npeblame/localvars"
	"npeblame/object"
	"npeblame/trace"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var option string

	root := &cobra.Command{
		Use:           "npeblame",
		Short:         "explain what was null when a NullPointerException was raised",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			globals.Init(option)
		},
	}
	root.PersistentFlags().StringVar(&option, "option", "",
		`agent option string; "debug" and "trace" raise log verbosity, anything else is ignored`)

	root.AddCommand(newAnalyzeCmd())
	root.AddCommand(newDumpCmd())
	root.AddCommand(newAgentCmd())
	return root
}

func newAnalyzeCmd() *cobra.Command {
	var methodName, methodDesc string
	var offset int

	cmd := &cobra.Command{
		Use:   "analyze <classfile>",
		Short: "run the NPE cause analysis against a method of a class file",
		Long: `Loads a class file, assumes a NullPointerException was raised at the
given bytecode offset of the given method, and prints the detail message
the agent would have written onto the exception.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			sim := hostadapter.NewSim()
			className, err := sim.LoadClassFile(raw)
			if err != nil {
				return err
			}
			method, err := sim.FindMethod(className, methodName, methodDesc)
			if err != nil {
				return err
			}

			thread := sim.NewThread()
			sim.PushFrame(thread, method, offset)
			exc := object.NewThrowable(hostadapter.NPEClassName)
			hostadapter.OnException(sim, hostadapter.SimBridge{}, hostadapter.Event{
				Thread:    thread,
				Method:    method,
				Offset:    offset,
				Exception: exc,
			})

			msg := exc.DetailMessage()
			if msg == "" {
				return fmt.Errorf("analysis produced no message for %s.%s at offset %d (see log output)",
					className, methodName, offset)
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
	cmd.Flags().StringVarP(&methodName, "method", "m", "", "name of the faulting method")
	cmd.Flags().StringVarP(&methodDesc, "descriptor", "d", "", "method descriptor, required when the name is overloaded")
	cmd.Flags().IntVarP(&offset, "offset", "o", 0, "bytecode offset of the faulting instruction")
	_ = cmd.MarkFlagRequired("method")
	_ = cmd.MarkFlagRequired("offset")
	return cmd
}

func newDumpCmd() *cobra.Command {
	var methodName, methodDesc string

	cmd := &cobra.Command{
		Use:   "dump <classfile>",
		Short: "disassemble a method, resolving operands through the constant pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			sim := hostadapter.NewSim()
			className, err := sim.LoadClassFile(raw)
			if err != nil {
				return err
			}
			method, err := sim.FindMethod(className, methodName, methodDesc)
			if err != nil {
				return err
			}
			bytecode, err := sim.GetBytecodes(method)
			if err != nil {
				return err
			}
			class, err := sim.GetMethodDeclaringClass(method)
			if err != nil {
				return err
			}
			cpCount, cpBytes, err := sim.GetConstantPoolBytes(class)
			if err != nil {
				return err
			}

			pool, err := constpool.Parse(cpBytes, cpCount)
			if err != nil {
				return err
			}
			rows, err := sim.GetLocalVariableTable(method)
			if err != nil {
				return err
			}
			var vars *localvars.Table
			if len(rows) > 0 {
				if vars, err = localvars.New(rows); err != nil {
					return err
				}
			}
			attr, err := code.Decode(bytecode, vars)
			if err != nil {
				return err
			}
			for _, inst := range attr.Instructions {
				fmt.Fprintf(cmd.OutOrStdout(), "%5d: %s\n", inst.Offset, attr.Print(inst, pool))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&methodName, "method", "m", "", "name of the method to disassemble")
	cmd.Flags().StringVarP(&methodDesc, "descriptor", "d", "", "method descriptor, required when the name is overloaded")
	_ = cmd.MarkFlagRequired("method")
	return cmd
}

func newAgentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agent",
		Short: "describe the load-time contract of the in-process agent",
		Long: `Prints what the agent requests from the host at load time: the
diagnostic capabilities, the event subscription, and how the option string
is interpreted. The native attach itself happens through the host's agent
loading mechanism, not through this binary.`,
		Run: func(cmd *cobra.Command, args []string) {
			log := trace.For(trace.Boot)
			log.Info("capabilities requested: can_get_bytecodes, can_get_constant_pool, can_access_local_variables, can_get_line_numbers, can_generate_exception_events")
			log.Info("event subscription: ExceptionRaised")
			log.Infof("option string: %q (recognized values: debug, trace)", globals.GetGlobalRef().Option)
		},
	}
}
