package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"permitflow/internal/config"
	"permitflow/internal/db"
	"permitflow/internal/domain"
	"permitflow/internal/engine"
	"permitflow/internal/migrate"
	"permitflow/internal/repo"
	"permitflow/internal/server"
	"permitflow/internal/workflow"
)

var rootCmd = &cobra.Command{
	Use:   "pf",
	Short: "PermitFlow CLI",
	Long: `PermitFlow runs the work-permit approval workflow for industrial sites.
Permits travel Requester -> Reviewer -> Approver; active permits can be
renewed in cycles and closed through the same chain. Worker credentials go
through their own approval track, and every decision lands in the event log
('pf log tail').`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initViper)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initViper() {
	viper.SetEnvPrefix("PERMITFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor", "local@permitflow", "actor email")
	rootCmd.PersistentFlags().String("role", "Requester", "acting role (Requester, Reviewer, Approver)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor"))
	_ = viper.BindPFlag("role", rootCmd.PersistentFlags().Lookup("role"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(permitCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize workspace database and config",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfgPath := config.Path(workspace)
			if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
				if err := os.WriteFile(cfgPath, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Println("wrote", cfgPath)
			}
			fmt.Println("workspace ready:", db.Path(workspace))
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(c)
		},
	})
	return cfg
}

func permitCmd() *cobra.Command {
	p := &cobra.Command{Use: "permit", Short: "Manage permits"}
	p.AddCommand(permitCreateCmd())
	p.AddCommand(permitListCmd())
	p.AddCommand(permitShowCmd())
	p.AddCommand(permitActionCmd())
	p.AddCommand(permitResubmitCmd())
	p.AddCommand(permitRenewCmd())
	p.AddCommand(permitRenewActionCmd())
	return p
}

func permitCreateCmd() *cobra.Command {
	var workType, reviewer, approver, from, to, location, description string
	var workers []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "File a new permit request",
		RunE: func(cmd *cobra.Command, args []string) error {
			if workType == "" {
				return fmt.Errorf("--work-type required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreatePermit(ctx, engine.PermitCreateOptions{
					WorkType:       workType,
					RequesterEmail: viper.GetString("actor"),
					ReviewerEmail:  reviewer,
					ApproverEmail:  approver,
					ValidFrom:      from,
					ValidTo:        to,
					ExactLocation:  location,
					Description:    description,
					Workers:        workers,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&workType, "work-type", "", "configured work type")
	cmd.Flags().StringVar(&reviewer, "reviewer", "", "reviewer email")
	cmd.Flags().StringVar(&approver, "approver", "", "approver email")
	cmd.Flags().StringVar(&from, "valid-from", "", "validity start (RFC3339)")
	cmd.Flags().StringVar(&to, "valid-to", "", "validity end (RFC3339)")
	cmd.Flags().StringVar(&location, "location", "", "exact work location")
	cmd.Flags().StringVar(&description, "description", "", "work description")
	cmd.Flags().StringSliceVar(&workers, "worker", nil, "worker id (repeatable)")
	return cmd
}

func permitListCmd() *cobra.Command {
	var status, workType string
	var mine bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List permits",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				f := repo.PermitFilter{
					Status:   domain.PermitStatus(status),
					WorkType: workType,
				}
				if mine {
					f.RequesterEmail = viper.GetString("actor")
				}
				permits, err := r.ListPermits(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(permits)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Status", "Work Type", "Requester", "Valid To", "Renewals"})
				for _, p := range permits {
					tw.AppendRow(table.Row{p.ID, p.Status, p.WorkType, p.RequesterEmail, p.ValidTo, len(p.Renewals)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&workType, "work-type", "", "work type filter")
	cmd.Flags().BoolVar(&mine, "mine", false, "only permits filed by --actor")
	return cmd
}

func permitShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <permit-id>",
		Short: "Show one permit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := r.GetPermit(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func permitActionCmd() *cobra.Command {
	var remarks, reason, ifStatus, requestorRemarks string
	var siteRestored bool
	cmd := &cobra.Command{
		Use:   "action <permit-id> <action>",
		Short: "Apply a workflow action (review, approve, reject, initiate_closure, approve_closure, reject_closure)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.ApplyPermitAction(ctx, engine.PermitActionOptions{
					PermitID:         args[0],
					Action:           workflow.Action(args[1]),
					Role:             domain.Role(viper.GetString("role")),
					ActorID:          viper.GetString("actor"),
					Remarks:          remarks,
					Reason:           reason,
					IfStatus:         domain.PermitStatus(ifStatus),
					SiteRestored:     siteRestored,
					RequestorRemarks: requestorRemarks,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&remarks, "remarks", "", "remarks recorded with the decision")
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason")
	cmd.Flags().StringVar(&ifStatus, "if-status", "", "status the caller observed; submit fails on mismatch instead of firing twice")
	cmd.Flags().BoolVar(&siteRestored, "site-restored", false, "site restored (initiate_closure)")
	cmd.Flags().StringVar(&requestorRemarks, "closure-remarks", "", "requestor remarks (initiate_closure)")
	return cmd
}

func permitResubmitCmd() *cobra.Command {
	var from, to string
	var workers []string
	cmd := &cobra.Command{
		Use:   "resubmit <permit-id>",
		Short: "Edit and resubmit a permit for review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.ResubmitPermit(ctx, engine.PermitResubmitOptions{
					PermitID:  args[0],
					Role:      domain.Role(viper.GetString("role")),
					ActorID:   viper.GetString("actor"),
					ValidFrom: optionalString(from),
					ValidTo:   optionalString(to),
					Workers:   workers,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&from, "valid-from", "", "new validity start")
	cmd.Flags().StringVar(&to, "valid-to", "", "new validity end")
	cmd.Flags().StringSliceVar(&workers, "worker", nil, "replacement worker roster (repeatable)")
	return cmd
}

func permitRenewCmd() *cobra.Command {
	var from, to, hc, toxic, oxygen, precautions string
	var workers []string
	cmd := &cobra.Command{
		Use:   "renew <permit-id>",
		Short: "Request a renewal for an active permit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if from == "" || to == "" {
				return fmt.Errorf("--valid-from and --valid-to required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.RequestRenewal(ctx, engine.RenewalRequestOptions{
					PermitID:    args[0],
					Role:        domain.Role(viper.GetString("role")),
					ActorID:     viper.GetString("actor"),
					ValidFrom:   from,
					ValidTo:     to,
					Gas:         domain.GasReadings{HC: hc, Toxic: toxic, Oxygen: oxygen},
					Precautions: precautions,
					Workers:     workers,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&from, "valid-from", "", "extension start (RFC3339)")
	cmd.Flags().StringVar(&to, "valid-to", "", "extension end (RFC3339)")
	cmd.Flags().StringVar(&hc, "gas-hc", "", "hydrocarbon reading")
	cmd.Flags().StringVar(&toxic, "gas-toxic", "", "toxic gas reading")
	cmd.Flags().StringVar(&oxygen, "gas-oxygen", "", "oxygen reading")
	cmd.Flags().StringVar(&precautions, "precautions", "", "additional precautions")
	cmd.Flags().StringSliceVar(&workers, "worker", nil, "worker id (repeatable)")
	return cmd
}

func permitRenewActionCmd() *cobra.Command {
	var reason, ifStatus string
	cmd := &cobra.Command{
		Use:   "renew-action <permit-id> <approve|reject>",
		Short: "Decide the open renewal entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.ApplyRenewalAction(ctx, engine.RenewalActionOptions{
					PermitID: args[0],
					Action:   workflow.Action(args[1]),
					Role:     domain.Role(viper.GetString("role")),
					ActorID:  viper.GetString("actor"),
					Reason:   reason,
					IfStatus: domain.PermitStatus(ifStatus),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason")
	cmd.Flags().StringVar(&ifStatus, "if-status", "", "status the caller observed")
	return cmd
}

func workerCmd() *cobra.Command {
	w := &cobra.Command{Use: "worker", Short: "Manage worker credentials"}
	w.AddCommand(workerCreateCmd())
	w.AddCommand(workerListCmd())
	w.AddCommand(workerShowCmd())
	w.AddCommand(workerEditCmd())
	w.AddCommand(workerActionCmd())
	w.AddCommand(workerDeleteCmd())
	return w
}

func workerCreateCmd() *cobra.Command {
	var name, idType, idNumber, contractor, phone string
	var age int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a worker credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.CreateWorker(ctx, engine.WorkerCreateOptions{
					RequestorEmail: viper.GetString("actor"),
					Details: domain.WorkerDetails{
						Name:       name,
						Age:        age,
						IDType:     idType,
						IDNumber:   idNumber,
						Contractor: contractor,
						Phone:      phone,
					},
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "worker name")
	cmd.Flags().IntVar(&age, "age", 0, "worker age")
	cmd.Flags().StringVar(&idType, "id-type", "", "identity document type")
	cmd.Flags().StringVar(&idNumber, "id-number", "", "identity document number")
	cmd.Flags().StringVar(&contractor, "contractor", "", "contractor company")
	cmd.Flags().StringVar(&phone, "phone", "", "contact phone")
	return cmd
}

func workerListCmd() *cobra.Command {
	var status string
	var mine bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				f := repo.WorkerFilter{Status: domain.WorkerStatus(status)}
				if mine {
					f.RequestorEmail = viper.GetString("actor")
				}
				workers, err := r.ListWorkers(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(workers)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Status", "Name", "Age", "Contractor"})
				for _, w := range workers {
					details := w.Current
					if details == nil {
						details = w.Pending
					}
					name, contractor := "", ""
					age := 0
					if details != nil {
						name, age, contractor = details.Name, details.Age, details.Contractor
					}
					tw.AppendRow(table.Row{w.ID, w.Status, name, age, contractor})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().BoolVar(&mine, "mine", false, "only workers registered by --actor")
	return cmd
}

func workerShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <worker-id>",
		Short: "Show one worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				w, err := r.GetWorker(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
}

func workerEditCmd() *cobra.Command {
	var name, idType, idNumber, contractor, phone string
	var age int
	cmd := &cobra.Command{
		Use:   "edit <worker-id>",
		Short: "Request changes to an approved worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.WorkerEditOptions{
					WorkerID: args[0],
					Role:     domain.Role(viper.GetString("role")),
					ActorID:  viper.GetString("actor"),
				}
				if cmd.Flags().Changed("name") {
					opts.Name = &name
				}
				if cmd.Flags().Changed("age") {
					opts.Age = &age
				}
				if cmd.Flags().Changed("id-type") {
					opts.IDType = &idType
				}
				if cmd.Flags().Changed("id-number") {
					opts.IDNumber = &idNumber
				}
				if cmd.Flags().Changed("contractor") {
					opts.Contractor = &contractor
				}
				if cmd.Flags().Changed("phone") {
					opts.Phone = &phone
				}
				w, err := e.EditWorker(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "worker name")
	cmd.Flags().IntVar(&age, "age", 0, "worker age")
	cmd.Flags().StringVar(&idType, "id-type", "", "identity document type")
	cmd.Flags().StringVar(&idNumber, "id-number", "", "identity document number")
	cmd.Flags().StringVar(&contractor, "contractor", "", "contractor company")
	cmd.Flags().StringVar(&phone, "phone", "", "contact phone")
	return cmd
}

func workerActionCmd() *cobra.Command {
	var reason, ifStatus string
	cmd := &cobra.Command{
		Use:   "action <worker-id> <approve|reject>",
		Short: "Decide a worker approval stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.ApplyWorkerAction(ctx, engine.WorkerActionOptions{
					WorkerID: args[0],
					Action:   workflow.Action(args[1]),
					Role:     domain.Role(viper.GetString("role")),
					ActorID:  viper.GetString("actor"),
					Reason:   reason,
					IfStatus: domain.WorkerStatus(ifStatus),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason")
	cmd.Flags().StringVar(&ifStatus, "if-status", "", "status the caller observed")
	return cmd
}

func workerDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <worker-id>",
		Short: "Delete a worker credential (Approver only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteWorker(ctx, args[0], domain.Role(viper.GetString("role")), viper.GetString("actor"))
			})
		},
	}
}

func userCmd() *cobra.Command {
	u := &cobra.Command{Use: "user", Short: "Directory users"}
	u.AddCommand(userCreateCmd())
	u.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				users, err := r.ListUsers(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(users)
			})
		},
	})
	return u
}

func userCreateCmd() *cobra.Command {
	var email, name, role, password string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.CreateUser(ctx, email, name, domain.Role(role), password)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "user email")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", "Requester", "Requester, Reviewer or Approver")
	cmd.Flags().StringVar(&password, "password", "", "login password")
	return cmd
}

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Work queues for --actor and --role",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.GetDashboard(ctx, domain.Role(viper.GetString("role")), viper.GetString("actor"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Status breakdown across the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.GetStats(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Event log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacy bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("PERMITFLOW_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacy,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("PERMITFLOW_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving PermitFlow API on http://%s%s\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&allowLegacy, "allow-legacy-actor-header", false, "accept X-Actor-Email/X-Actor-Role without a token")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, cfg))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
