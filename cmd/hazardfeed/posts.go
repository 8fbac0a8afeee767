package main

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/hazardfeed/pkg/client"
	"github.com/cuemby/hazardfeed/pkg/types"
)

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "Read and submit disaster reports",
}

var postsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List posts, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		ctx, cancel := context.WithTimeout(cmd.Context(), client.DefaultTimeout)
		defer cancel()

		posts, err := newClient(cmd).ListPosts(ctx)
		if err != nil {
			return fmt.Errorf("failed to list posts: %w", err)
		}
		if len(posts) == 0 {
			fmt.Println("No posts")
			return nil
		}
		if limit > 0 && len(posts) > limit {
			posts = posts[:limit]
		}

		fmt.Printf("%-36s  %-20s  %-5s  %-16s  %s\n", "ID", "CREATED", "FILES", "LOCATION", "CONTENT")
		for _, p := range posts {
			printPost(p)
		}
		return nil
	},
}

var postsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Submit a post",
	Long: `Submit a disaster report. Content, a file or both are required.

Examples:
  hazardfeed posts create --content "Road flooded" --location "Kochi"
  hazardfeed posts create --file photo.jpg --lat 9.93 --lng 76.26`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("content")
		location, _ := cmd.Flags().GetString("location")
		paths, _ := cmd.Flags().GetStringSlice("file")

		post := client.NewPost{Content: text, Location: location}

		if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
			lat, _ := cmd.Flags().GetFloat64("lat")
			lng, _ := cmd.Flags().GetFloat64("lng")
			accuracy, _ := cmd.Flags().GetFloat64("accuracy")
			post.Coordinates = &types.Coordinates{Lat: lat, Lng: lng, AccuracyM: accuracy}
		}

		for _, path := range paths {
			file, err := readAttachment(path)
			if err != nil {
				return err
			}
			post.Files = append(post.Files, file)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		created, err := newClient(cmd).CreatePost(ctx, post)
		if err != nil {
			return fmt.Errorf("failed to create post: %w", err)
		}

		fmt.Printf("✓ Post created: %s\n", created.ID)
		for _, f := range created.Files {
			fmt.Printf("  %s (%s): %s\n", f.Name, f.Kind, f.URL)
		}
		return nil
	},
}

var postsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a post (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), client.DefaultTimeout)
		defer cancel()

		if err := newClient(cmd).DeletePost(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to delete post: %w", err)
		}
		fmt.Printf("✓ Post deleted: %s\n", args[0])
		return nil
	},
}

func init() {
	postsCmd.AddCommand(postsListCmd)
	postsCmd.AddCommand(postsCreateCmd)
	postsCmd.AddCommand(postsDeleteCmd)

	postsListCmd.Flags().Int("limit", 0, "Show at most this many posts (0 for all)")

	postsCreateCmd.Flags().String("content", "", "Report text")
	postsCreateCmd.Flags().String("location", "", "Free-text location label")
	postsCreateCmd.Flags().Float64("lat", 0, "Latitude")
	postsCreateCmd.Flags().Float64("lng", 0, "Longitude")
	postsCreateCmd.Flags().Float64("accuracy", 0, "Position accuracy in meters")
	postsCreateCmd.Flags().StringSlice("file", nil, "File to attach (repeatable)")

	rootCmd.AddCommand(postsCmd)
}

func printPost(p *types.Post) {
	location := p.Location
	if location == "" && p.Coordinates != nil {
		location = fmt.Sprintf("%.3f,%.3f", p.Coordinates.Lat, p.Coordinates.Lng)
	}
	fmt.Printf("%-36s  %-20s  %-5d  %-16s  %s\n",
		p.ID,
		p.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		len(p.Files),
		truncate(location, 16),
		truncate(strings.ReplaceAll(p.Content, "\n", " "), 60),
	)
}

func readAttachment(path string) (client.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return client.File{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return client.File{Name: filepath.Base(path), Type: contentType, Data: data}, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
