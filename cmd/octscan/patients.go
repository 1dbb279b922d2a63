package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/octscan/octscan/internal/domain/clinic"
	"github.com/octscan/octscan/internal/domain/roles"
	"github.com/octscan/octscan/internal/platform/apierr"
)

func (c *cli) patientsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "patients",
		Aliases: []string{"patient"},
		Short:   "List and manage patients",
	}
	cmd.AddCommand(c.patientsListCmd())
	cmd.AddCommand(c.patientsShowCmd())
	cmd.AddCommand(c.patientsCreateCmd())
	cmd.AddCommand(c.patientsUpdateCmd())
	cmd.AddCommand(c.patientsDeleteCmd())
	cmd.AddCommand(c.patientsRescheduleCmd())
	return cmd
}

func (c *cli) printPatients(patients []clinic.Patient) error {
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tAGE\tGENDER\tAPPOINTMENT\tSCANS")
	for _, p := range patients {
		appt := p.CurrentAppointment
		if appt == "" {
			appt = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%d\n", p.ID, p.Name, p.Age, p.Gender, appt, len(p.Scans))
	}
	return tw.Flush()
}

func (c *cli) patientsListCmd() *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List patients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := c.authorize(ctx, roles.ViewPatients)
			if err != nil {
				return err
			}
			st, err := c.store(ctx, sess)
			if err != nil {
				return err
			}
			return c.printPatients(st.Snapshot().Search(search))
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "filter by name or id")
	return cmd
}

func (c *cli) patientsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one patient with their scans",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := c.authorize(ctx, roles.ViewPatients)
			if err != nil {
				return err
			}
			st, err := c.store(ctx, sess)
			if err != nil {
				return err
			}
			if err := st.Select(args[0]); err != nil {
				return err
			}
			p, err := st.GetPatient(ctx, args[0])
			if err != nil {
				return err
			}
			return c.printJSON(p)
		},
	}
}

type patientFlags struct {
	in clinic.PatientInput
}

func (f *patientFlags) bind(cmd *cobra.Command, withID bool) {
	if withID {
		cmd.Flags().StringVar(&f.in.ID, "id", "", "patient id (generated when empty)")
	}
	cmd.Flags().StringVar(&f.in.Name, "name", "", "full name")
	cmd.Flags().IntVar(&f.in.Age, "age", 0, "age in years")
	cmd.Flags().StringVar(&f.in.Gender, "gender", "", "gender")
	cmd.Flags().StringVar(&f.in.CurrentAppointment, "appointment", "", "current appointment (YYYY-MM-DD)")
}

func (c *cli) patientsCreateCmd() *cobra.Command {
	var f patientFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a patient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := c.authorize(ctx, roles.MutatePatients)
			if err != nil {
				return err
			}
			st, err := c.store(ctx, sess)
			if err != nil {
				return err
			}
			p, err := st.CreatePatient(ctx, f.in)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Created patient %s\n", p.ID)
			return nil
		},
	}
	f.bind(cmd, true)
	return cmd
}

func (c *cli) patientsUpdateCmd() *cobra.Command {
	var f patientFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit a patient; unset flags keep their current value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := c.authorize(ctx, roles.MutatePatients)
			if err != nil {
				return err
			}
			st, err := c.store(ctx, sess)
			if err != nil {
				return err
			}
			cur, ok := st.Snapshot().Patient(args[0])
			if !ok {
				return apierr.Validation("update patient", fmt.Sprintf("patient %s not found", args[0]))
			}

			in := clinic.PatientInput{
				ID:                 cur.ID,
				Name:               cur.Name,
				Age:                cur.Age,
				Gender:             cur.Gender,
				CurrentAppointment: cur.CurrentAppointment,
			}
			flags := cmd.Flags()
			if flags.Changed("name") {
				in.Name = f.in.Name
			}
			if flags.Changed("age") {
				in.Age = f.in.Age
			}
			if flags.Changed("gender") {
				in.Gender = f.in.Gender
			}
			if flags.Changed("appointment") {
				in.CurrentAppointment = f.in.CurrentAppointment
			}

			p, err := st.UpdatePatient(ctx, args[0], in)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Updated patient %s\n", p.ID)
			return nil
		},
	}
	f.bind(cmd, false)
	return cmd
}

func (c *cli) patientsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a patient and their scans",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := c.authorize(ctx, roles.MutatePatients)
			if err != nil {
				return err
			}
			st, err := c.store(ctx, sess)
			if err != nil {
				return err
			}
			if err := st.DeletePatient(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Deleted patient %s\n", args[0])
			return nil
		},
	}
}

func (c *cli) patientsRescheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reschedule <id> <YYYY-MM-DD>",
		Short: "Move a patient's appointment and record the days saved",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := c.authorize(ctx, roles.MutatePatients)
			if err != nil {
				return err
			}
			st, err := c.store(ctx, sess)
			if err != nil {
				return err
			}
			days, err := st.ReschedulePatient(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if err := sess.SaveHistory(ctx, st.History()); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Rescheduled %s to %s (%d days saved)\n", args[0], args[1], days)
			return nil
		},
	}
}
