package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/octscan/octscan/internal/domain/clinic"
	"github.com/octscan/octscan/internal/domain/roles"
)

func (c *cli) scansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "scans",
		Aliases: []string{"scan"},
		Short:   "List, upload and assess OCT scans",
	}
	cmd.AddCommand(c.scansListCmd())
	cmd.AddCommand(c.scansUploadCmd())
	cmd.AddCommand(c.scansAssessCmd())
	cmd.AddCommand(c.scansDeleteCmd())
	cmd.AddCommand(c.scansOrphansCmd())
	return cmd
}

func (c *cli) printScans(scans []clinic.Scan) error {
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPATIENT\tUPLOADED\tCONDITION\tCONFIDENCE\tASSESSMENT")
	for _, sc := range scans {
		assessment := "pending"
		if a := sc.DoctorAssessment; a != nil {
			assessment = "confirmed by " + a.AssessedBy
			if !a.Confirmed {
				assessment = "corrected to " + a.CorrectedDiagnosis + " by " + a.AssessedBy
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.0f%%\t%s\n",
			sc.ID, sc.PatientID, sc.UploadDate, sc.Prediction.Condition, sc.Prediction.Confidence*100, assessment)
	}
	return tw.Flush()
}

func (c *cli) scansListCmd() *cobra.Command {
	var patientID string
	var remote bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := c.authorize(ctx, roles.ViewScans)
			if err != nil {
				return err
			}
			st, err := c.store(ctx, sess)
			if err != nil {
				return err
			}

			if remote {
				scans, err := st.ListAllScans(ctx)
				if err != nil {
					return err
				}
				return c.printScans(scans)
			}
			snap := st.Snapshot()
			if patientID == "" {
				return c.printScans(snap.Scans())
			}
			p, ok := snap.Patient(patientID)
			if !ok {
				return fmt.Errorf("patient %s not found", patientID)
			}
			return c.printScans(p.Scans)
		},
	}
	cmd.Flags().StringVar(&patientID, "patient", "", "only this patient's scans")
	cmd.Flags().BoolVar(&remote, "all", false, "read every scan straight from the backend")
	return cmd
}

func (c *cli) scansUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <patient-id> <image>",
		Short: "Run inference on an image and save the scan",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := c.authorize(ctx, roles.UploadScan)
			if err != nil {
				return err
			}
			st, err := c.store(ctx, sess)
			if err != nil {
				return err
			}

			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()

			res, err := st.UploadAndCreateScan(ctx, args[0], filepath.Base(args[1]), f)
			var orphan *clinic.OrphanedInferenceError
			if errors.As(err, &orphan) {
				fmt.Fprintf(c.errOut, "Inference returned %s (%.0f%%) for %s but the scan was not saved\n",
					orphan.Prediction.PredictedClass, orphan.Prediction.PredictedProbability*100, orphan.Prediction.ImageURL)
				if serr := sess.SaveOrphans(ctx, st.Orphans()); serr != nil {
					c.logger.Error().Err(serr).Msg("save orphaned inference")
				}
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Saved scan %s: %s (%.0f%%)\n",
				res.Scan.ID, res.Scan.Prediction.Condition, res.Scan.Prediction.Confidence*100)
			return nil
		},
	}
}

func (c *cli) scansAssessCmd() *cobra.Command {
	var in clinic.AssessmentInput
	cmd := &cobra.Command{
		Use:   "assess <scan-id>",
		Short: "Confirm or correct a prediction (doctors only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := c.authorize(ctx, roles.AddOrEditAssessment)
			if err != nil {
				return err
			}
			st, err := c.store(ctx, sess)
			if err != nil {
				return err
			}
			if in.AssessedBy == "" {
				if u := sess.StoredUser(ctx); u != nil {
					in.AssessedBy = u.Username
				}
			}
			sc, err := st.AssessScan(ctx, sess.Role(ctx), args[0], in)
			if err != nil {
				return err
			}
			return c.printJSON(sc)
		},
	}
	cmd.Flags().StringVar(&in.Notes, "notes", "", "assessment notes (required)")
	cmd.Flags().StringVar(&in.CorrectedDiagnosis, "corrected", "", "corrected diagnosis; empty confirms the prediction")
	cmd.Flags().StringVar(&in.AssessedBy, "by", "", "assessor name (defaults to the logged-in user)")
	return cmd
}

func (c *cli) scansDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <scan-id>",
		Short: "Delete a scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := c.authorize(ctx, roles.DeleteScan)
			if err != nil {
				return err
			}
			st, err := c.store(ctx, sess)
			if err != nil {
				return err
			}
			if err := st.DeleteScan(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Deleted scan %s\n", args[0])
			return nil
		},
	}
}

func (c *cli) scansOrphansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "orphans",
		Short: "List inference results whose scan was never saved",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := c.authorize(ctx, roles.UploadScan)
			if err != nil {
				return err
			}
			orphans, err := sess.Orphans(ctx)
			if err != nil {
				return err
			}
			if len(orphans) == 0 {
				fmt.Fprintln(c.out, "No orphaned inferences")
				return nil
			}
			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PATIENT\tAT\tCLASS\tCONFIDENCE\tIMAGE\tERROR")
			for _, o := range orphans {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.0f%%\t%s\t%s\n",
					o.PatientID, o.At.Format(time.RFC3339), o.Prediction.PredictedClass,
					o.Prediction.PredictedProbability*100, o.Prediction.ImageURL, o.Error)
			}
			return tw.Flush()
		},
	}
}
