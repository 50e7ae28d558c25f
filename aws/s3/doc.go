// Package s3 is the object-store client used by the release phase artifact
// store. It wraps AWS SDK v2 with the handful of operations the store needs
// (upload, download, paginated list and delete), maps SDK failures onto the
// sentinels in aws/s3/errors and supports S3-compatible endpoints through
// path-style addressing.
//
// Example usage:
//
//	client, err := s3.New(ctx,
//	    s3.WithRegion("eu-west-1"),
//	    s3.WithCredentials(creds),
//	)
//	if err != nil {
//	    return err
//	}
//
//	f, err := os.Open("release-42.tgz")
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//
//	if _, err := client.Upload(ctx, "my-bucket", "artifacts/release-42.tgz", f); err != nil {
//	    return err
//	}
package s3
