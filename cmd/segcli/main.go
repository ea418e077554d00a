// segcli is a thin command-line front end for the segmentation client
// library: it uploads media, creates jobs, polls status, and decodes mask
// artifacts. Credentials come from the environment: SEG_API_KEY or
// SEG_SESSION_TOKEN (exactly one).
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	segment "github.com/visionrelay/segment-go"
	"github.com/visionrelay/segment-go/logging"
	"github.com/visionrelay/segment-go/rle"
)

// CLI flags
var (
	accountFlag   string
	kindFlag      string
	promptsFlag   []string
	fpsFlag       float64
	numFramesFlag int
	timeoutFlag   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "segcli",
	Short: "Client for the VisionRelay instance-segmentation service",
	Long: `segcli drives the segmentation service from the command line.

Examples:
  segcli create --kind image_batch photo1.jpg photo2.png
  segcli create --kind video --prompt "person" --fps 2 clip.mp4
  segcli status job-123
  segcli watch job-123 --timeout 10m
  segcli masks job-123 task-456 3`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&accountFlag, "account", os.Getenv("SEG_ACCOUNT_ID"), "Account id for mask key derivation")

	createCmd.Flags().StringVar(&kindFlag, "kind", "image_batch", "Job kind: image_batch or video")
	createCmd.Flags().StringSliceVar(&promptsFlag, "prompt", nil, "Text prompt (repeatable; required for video)")
	createCmd.Flags().Float64Var(&fpsFlag, "fps", 0, "Video sampling rate in frames per second")
	createCmd.Flags().IntVar(&numFramesFlag, "num-frames", 0, "Video frame budget (exclusive with --fps)")
	watchCmd.Flags().DurationVar(&timeoutFlag, "timeout", 5*time.Minute, "How long to wait for a terminal status")

	rootCmd.AddCommand(createCmd, statusCmd, watchCmd, masksCmd, decodeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newClient builds the library client from environment credentials.
func newClient() *segment.Client {
	logging.Init()

	var opts []segment.Option
	if key := os.Getenv("SEG_API_KEY"); key != "" {
		opts = append(opts, segment.WithAPIKey(key))
	}
	if token := os.Getenv("SEG_SESSION_TOKEN"); token != "" {
		opts = append(opts, segment.WithSessionToken(token))
	}
	if accountFlag != "" {
		opts = append(opts, segment.WithAccountID(accountFlag))
	}

	client, err := segment.New(opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("Set exactly one of SEG_API_KEY or SEG_SESSION_TOKEN")
	}
	return client
}

var createCmd = &cobra.Command{
	Use:   "create [files...]",
	Short: "Upload files and create a segmentation job",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient()

		files := make([]segment.UploadFile, 0, len(args))
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				log.Fatal().Err(err).Str("path", path).Msg("Failed to read input file")
			}
			files = append(files, segment.UploadFile{
				Data:        data,
				ContentType: contentTypeFor(path),
			})
		}

		req := segment.JobRequest{
			Type:      segment.JobKind(kindFlag),
			Prompts:   promptsFlag,
			FPS:       fpsFlag,
			NumFrames: numFramesFlag,
		}
		created, err := client.UploadAndCreateJob(cmd.Context(), files, req, func(done, total int) {
			fmt.Fprintf(os.Stderr, "uploaded %d/%d\n", done, total)
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Job creation failed")
		}
		fmt.Printf("%s\t%s\t%d items\n", created.JobID, created.Status, created.TotalItems)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Fetch a job's status and tasks",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient()
		res, err := client.JobStatus(cmd.Context(), args[0])
		if err != nil {
			log.Fatal().Err(err).Msg("Status fetch failed")
		}
		printStatus(res)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Poll a job until it reaches a terminal status",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient()
		res, err := client.WaitForJob(cmd.Context(), args[0], timeoutFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Wait failed")
		}
		printStatus(res)
	},
}

var masksCmd = &cobra.Command{
	Use:   "masks <job-id> <task-id> <count>",
	Short: "Print the derived mask artifact URLs for a task",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient()
		var count int
		if _, err := fmt.Sscanf(args[2], "%d", &count); err != nil || count < 0 {
			log.Fatal().Str("count", args[2]).Msg("Count must be a non-negative integer")
		}
		for _, mask := range client.TaskMasks(args[0], args[1], count) {
			fmt.Printf("%d\t%s\n", mask.MaskIndex, mask.URL)
		}
	},
}

var decodeCmd = &cobra.Command{
	Use:   "decode <rle.json>",
	Short: "Decode a COCO RLE mask file and summarize its pixels",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		logging.Init()
		data, err := os.ReadFile(args[0])
		if err != nil {
			log.Fatal().Err(err).Str("path", args[0]).Msg("Failed to read mask file")
		}
		var mask rle.Mask
		if err := json.Unmarshal(data, &mask); err != nil {
			log.Fatal().Err(err).Msg("Mask file is not valid RLE JSON")
		}
		pixels, err := rle.Decode(mask)
		if err != nil {
			log.Fatal().Err(err).Msg("RLE decode failed")
		}
		foreground := 0
		for _, p := range pixels {
			if p != 0 {
				foreground++
			}
		}
		fmt.Printf("%dx%d\t%d foreground of %d pixels\n",
			mask.Size[1], mask.Size[0], foreground, len(pixels))
	},
}

func printStatus(res *segment.JobStatusResult) {
	fmt.Printf("job %s\t%s\t%s\n", res.Job.ID, res.Job.Kind, res.Job.Status)
	fmt.Printf("items: %d total, %d success, %d failed\n",
		res.Job.Items.Total, res.Job.Items.Success, res.Job.Items.Failed)
	for _, task := range res.Tasks {
		line := fmt.Sprintf("  task %s\t%s", task.ID, task.Status)
		if task.Error != "" {
			line += "\t" + task.Error
		}
		fmt.Println(line)
		for _, mask := range task.Masks {
			fmt.Printf("    mask %d\t%s\n", mask.MaskIndex, mask.URL)
		}
	}
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	default:
		return "application/octet-stream"
	}
}
